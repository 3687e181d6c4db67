package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubRPC scripts responses per command and records calls.
type stubRPC struct {
	mu        sync.Mutex
	submits   int
	txQueries int

	engineResult string
	txValidated  bool
	txResult     string
	callErr      error
	sequence     uint32
	balance      string
	escrows      []string // conditions present on the account
}

func (s *stubRPC) IsConnected() bool { return true }

func (s *stubRPC) Call(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callErr != nil {
		return nil, s.callErr
	}

	switch command {
	case "submit":
		s.submits++
		out := fmt.Sprintf(`{"engine_result":%q,"tx_json":{"hash":"ABC123","Sequence":%d}}`,
			s.engineResult, s.sequence)
		return json.RawMessage(out), nil
	case "tx":
		s.txQueries++
		out := fmt.Sprintf(`{"validated":%v,"meta":{"TransactionResult":%q}}`,
			s.txValidated, s.txResult)
		return json.RawMessage(out), nil
	case "account_info":
		out := fmt.Sprintf(`{"account_data":{"Balance":%q}}`, s.balance)
		return json.RawMessage(out), nil
	case "account_objects":
		objs := "["
		for i, c := range s.escrows {
			if i > 0 {
				objs += ","
			}
			objs += fmt.Sprintf(`{"Condition":%q}`, c)
		}
		objs += "]"
		return json.RawMessage(`{"account_objects":` + objs + `}`), nil
	}
	return nil, fmt.Errorf("unexpected command %s", command)
}

func newTestAdapter(rpc RPC) *Adapter {
	a := NewAdapter(rpc, Wallet{Address: "rNGOxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", Seed: "sTEST"}, 500*time.Millisecond)
	a.pollInterval = 5 * time.Millisecond
	return a
}

func TestCreateLockSuccess(t *testing.T) {
	rpc := &stubRPC{engineResult: "tesSUCCESS", txValidated: true, txResult: "tesSUCCESS", sequence: 42}
	a := newTestAdapter(rpc)

	seq, err := a.CreateLock(context.Background(), "rFarmer1aaaaaaaaaaaaaaaaaaaaaaaaa",
		100_000_000, "A0258020AA810120", time.Now().Add(5*time.Minute), time.Now().Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("CreateLock failed: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected sequence 42, got %d", seq)
	}
	if rpc.submits != 1 {
		t.Fatalf("expected 1 submit, got %d", rpc.submits)
	}
}

func TestCreateLockDefinitiveRejection(t *testing.T) {
	rpc := &stubRPC{engineResult: "tecUNFUNDED", sequence: 7}
	a := newTestAdapter(rpc)

	_, err := a.CreateLock(context.Background(), "rFarmer1aaaaaaaaaaaaaaaaaaaaaaaaa",
		100, "A0", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}

	var se *SubmissionError
	if !errors.As(err, &se) || se.Code != "tecUNFUNDED" {
		t.Fatalf("expected ledger reason code, got %v", err)
	}
}

func TestCreateLockUnreachable(t *testing.T) {
	rpc := &stubRPC{callErr: fmt.Errorf("%w: dial refused", ErrUnreachable)}
	a := newTestAdapter(rpc)

	_, err := a.CreateLock(context.Background(), "rFarmer1aaaaaaaaaaaaaaaaaaaaaaaaa",
		100, "A0", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestFinishLockWindowRejectionCarriesCode(t *testing.T) {
	rpc := &stubRPC{engineResult: "tecNO_PERMISSION"}
	a := newTestAdapter(rpc)

	_, err := a.FinishLock(context.Background(), 42, "A0", "A0")
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if se.Code != "tecNO_PERMISSION" || se.Operation != "escrow_finish" {
		t.Fatalf("unexpected error detail: %+v", se)
	}
}

func TestFinishLockIndeterminateThenReplaySkipsResubmit(t *testing.T) {
	rpc := &stubRPC{engineResult: "tesSUCCESS", txValidated: false, txResult: ""}
	a := newTestAdapter(rpc)
	a.timeout = 30 * time.Millisecond

	// First attempt: submit accepted but validation never observed.
	_, err := a.FinishLock(context.Background(), 42, "A0", "A0")
	if !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("expected ErrIndeterminate, got %v", err)
	}
	if rpc.submits != 1 {
		t.Fatalf("expected 1 submit, got %d", rpc.submits)
	}

	// Ledger finally validates the original transaction.
	rpc.mu.Lock()
	rpc.txValidated = true
	rpc.txResult = "tesSUCCESS"
	rpc.mu.Unlock()

	// Second attempt must poll the prior hash, not double-submit.
	a.timeout = 500 * time.Millisecond
	receipt, err := a.FinishLock(context.Background(), 42, "A0", "A0")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if receipt != "ABC123" {
		t.Fatalf("expected receipt ABC123, got %q", receipt)
	}
	if rpc.submits != 1 {
		t.Fatalf("replay must not resubmit; submits=%d", rpc.submits)
	}
}

func TestCancelLockSuccess(t *testing.T) {
	rpc := &stubRPC{engineResult: "tesSUCCESS", txValidated: true, txResult: "tesSUCCESS"}
	a := newTestAdapter(rpc)

	receipt, err := a.CancelLock(context.Background(), 42)
	if err != nil {
		t.Fatalf("CancelLock failed: %v", err)
	}
	if receipt == "" {
		t.Fatal("expected a settlement receipt")
	}
}

func TestBalance(t *testing.T) {
	rpc := &stubRPC{balance: "250000000"}
	a := newTestAdapter(rpc)

	drops, err := a.Balance(context.Background(), "rNGOxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if drops != 250_000_000 {
		t.Fatalf("expected 250000000 drops, got %d", drops)
	}
}

func TestHasLock(t *testing.T) {
	rpc := &stubRPC{escrows: []string{"A0258020FF810120"}}
	a := newTestAdapter(rpc)

	found, err := a.HasLock(context.Background(), "a0258020ff810120")
	if err != nil || !found {
		t.Fatalf("expected condition found, got %v %v", found, err)
	}

	found, err = a.HasLock(context.Background(), "A0DEADBEEF")
	if err != nil || found {
		t.Fatalf("expected condition absent, got %v %v", found, err)
	}
}
