package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agrilock/agrilock/internal/escrow"
	"github.com/agrilock/agrilock/internal/idgen"
	"github.com/agrilock/agrilock/internal/xrpl"
)

// stubLedger simulates XRPL escrow semantics in memory for demo mode, when
// no NGO wallet seed is configured. It enforces the same time-lock windows
// and condition checks the real ledger would, so lifecycle behavior matches.
type stubLedger struct {
	mu      sync.Mutex
	nextSeq uint32
	locks   map[uint32]*stubLock
}

type stubLock struct {
	destination string
	drops       int64
	condition   string
	finishAfter time.Time
	cancelAfter time.Time
}

var _ escrow.Ledger = (*stubLedger)(nil)

func newStubLedger() *stubLedger {
	return &stubLedger{nextSeq: 1000, locks: make(map[uint32]*stubLock)}
}

func (l *stubLedger) CreateLock(ctx context.Context, destination string, drops int64, condition string, finishAfter, cancelAfter time.Time) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	l.locks[l.nextSeq] = &stubLock{
		destination: destination,
		drops:       drops,
		condition:   condition,
		finishAfter: finishAfter,
		cancelAfter: cancelAfter,
	}
	return l.nextSeq, nil
}

func (l *stubLedger) FinishLock(ctx context.Context, sequence uint32, condition, fulfillment string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sequence]
	if !ok {
		return "", &xrpl.SubmissionError{Operation: "escrow_finish", Code: "tecNO_TARGET"}
	}
	if time.Now().Before(lock.finishAfter) || !time.Now().Before(lock.cancelAfter) {
		return "", &xrpl.SubmissionError{Operation: "escrow_finish", Code: "tecNO_PERMISSION"}
	}
	if !strings.EqualFold(lock.condition, condition) || !escrow.VerifyFulfillment(condition, fulfillment) {
		return "", &xrpl.SubmissionError{Operation: "escrow_finish", Code: "tecCRYPTOCONDITION_ERROR"}
	}

	delete(l.locks, sequence)
	return strings.ToUpper(idgen.Hex(32)), nil
}

func (l *stubLedger) CancelLock(ctx context.Context, sequence uint32) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sequence]
	if !ok {
		return "", &xrpl.SubmissionError{Operation: "escrow_cancel", Code: "tecNO_TARGET"}
	}
	if time.Now().Before(lock.cancelAfter) {
		return "", &xrpl.SubmissionError{Operation: "escrow_cancel", Code: "tecNO_PERMISSION"}
	}

	delete(l.locks, sequence)
	return strings.ToUpper(idgen.Hex(32)), nil
}

// IsConnected always reports true; there is nothing to disconnect from.
func (l *stubLedger) IsConnected() bool { return true }

// Balance reports a fixed demo balance.
func (l *stubLedger) Balance(ctx context.Context, address string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var locked int64
	for _, lock := range l.locks {
		locked += lock.drops
	}
	const demoFunds = 10_000 * xrpl.DropsPerXRP
	if locked > demoFunds {
		return 0, fmt.Errorf("demo wallet overdrawn")
	}
	return demoFunds - locked, nil
}
