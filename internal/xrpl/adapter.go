package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agrilock/agrilock/internal/metrics"
	"github.com/agrilock/agrilock/internal/retry"
)

// RPC is the slice of Client the adapter needs. Tests substitute a stub.
type RPC interface {
	Call(ctx context.Context, command string, params map[string]any) (json.RawMessage, error)
	IsConnected() bool
}

// Wallet identifies the NGO account that owns every escrow lock.
// The seed is only ever sent to the (trusted, typically local or testnet)
// server for sign-and-submit; it is never persisted.
type Wallet struct {
	Address string
	Seed    string
}

// opKey identifies one effectful ledger operation for idempotency purposes.
type opKey struct {
	sequence uint32
	kind     string
}

// Adapter translates escrow intents into XRPL transactions and waits for
// settlement. It does not retry rejected submissions; that policy belongs to
// the caller, which knows what local state has already been applied.
type Adapter struct {
	rpc          RPC
	wallet       Wallet
	timeout      time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	inflight map[opKey]string // prior submission's tx hash, keyed by (sequence, op kind)
}

// NewAdapter creates an escrow adapter over an established RPC connection.
func NewAdapter(rpc RPC, wallet Wallet, timeout time.Duration) *Adapter {
	return &Adapter{
		rpc:          rpc,
		wallet:       wallet,
		timeout:      timeout,
		pollInterval: 2 * time.Second,
		inflight:     make(map[opKey]string),
	}
}

// IsConnected reports ledger connectivity for the status endpoint.
func (a *Adapter) IsConnected() bool {
	return a.rpc.IsConnected()
}

// CreateLock submits an EscrowCreate locking drops for destination, gated by
// the given PREIMAGE-SHA-256 condition and time window. On success it
// returns the transaction sequence number, the handle every later finish or
// cancel must reference.
func (a *Adapter) CreateLock(ctx context.Context, destination string, drops int64, condition string, finishAfter, cancelAfter time.Time) (uint32, error) {
	tx := map[string]any{
		"TransactionType": "EscrowCreate",
		"Account":         a.wallet.Address,
		"Destination":     destination,
		"Amount":          strconv.FormatInt(drops, 10),
		"Condition":       condition,
		"FinishAfter":     ToRippleTime(finishAfter),
		"CancelAfter":     ToRippleTime(cancelAfter),
	}

	res, err := a.submitAndWait(ctx, "escrow_create", nil, tx)
	if err != nil {
		return 0, err
	}
	return res.Sequence, nil
}

// FinishLock submits an EscrowFinish disclosing the fulfillment. The ledger
// itself enforces the [FinishAfter, CancelAfter) window; out-of-window
// attempts surface as a SubmissionError carrying the ledger's reason code.
// Re-invoking after a network failure polls the prior submission instead of
// double-submitting.
func (a *Adapter) FinishLock(ctx context.Context, sequence uint32, condition, fulfillment string) (string, error) {
	key := opKey{sequence: sequence, kind: "escrow_finish"}
	if hash, ok := a.pending(key); ok {
		return hash, a.awaitPrior(ctx, "escrow_finish", key, hash)
	}

	tx := map[string]any{
		"TransactionType": "EscrowFinish",
		"Account":         a.wallet.Address,
		"Owner":           a.wallet.Address,
		"OfferSequence":   sequence,
		"Condition":       condition,
		"Fulfillment":     fulfillment,
	}

	res, err := a.submitAndWait(ctx, "escrow_finish", &key, tx)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// CancelLock submits an EscrowCancel. Legal on the ledger only at or after
// CancelAfter; the adapter does not pre-validate the window client-side.
func (a *Adapter) CancelLock(ctx context.Context, sequence uint32) (string, error) {
	key := opKey{sequence: sequence, kind: "escrow_cancel"}
	if hash, ok := a.pending(key); ok {
		return hash, a.awaitPrior(ctx, "escrow_cancel", key, hash)
	}

	tx := map[string]any{
		"TransactionType": "EscrowCancel",
		"Account":         a.wallet.Address,
		"Owner":           a.wallet.Address,
		"OfferSequence":   sequence,
	}

	res, err := a.submitAndWait(ctx, "escrow_cancel", &key, tx)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// Balance returns the validated balance of an account in drops.
func (a *Adapter) Balance(ctx context.Context, address string) (int64, error) {
	raw, err := a.rpc.Call(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return 0, err
	}

	var res struct {
		AccountData struct {
			Balance string `json:"Balance"`
		} `json:"account_data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("xrpl: decode account_info: %w", err)
	}
	return strconv.ParseInt(res.AccountData.Balance, 10, 64)
}

// HasLock reports whether an escrow object with the given condition still
// exists on the NGO account. Used for out-of-band reconciliation of
// indeterminate outcomes.
func (a *Adapter) HasLock(ctx context.Context, condition string) (bool, error) {
	raw, err := a.rpc.Call(ctx, "account_objects", map[string]any{
		"account": a.wallet.Address,
		"type":    "escrow",
	})
	if err != nil {
		return false, err
	}

	var res struct {
		AccountObjects []struct {
			Condition string `json:"Condition"`
		} `json:"account_objects"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("xrpl: decode account_objects: %w", err)
	}
	for _, obj := range res.AccountObjects {
		if strings.EqualFold(obj.Condition, condition) {
			return true, nil
		}
	}
	return false, nil
}

// awaitPrior resumes waiting on a previously submitted transaction instead
// of double-submitting a conflicting operation.
func (a *Adapter) awaitPrior(ctx context.Context, op string, key opKey, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.waitValidated(ctx, op, key, hash, time.Now())
}

func (a *Adapter) pending(key opKey) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hash, ok := a.inflight[key]
	return hash, ok
}

func (a *Adapter) record(key opKey, hash string) {
	a.mu.Lock()
	a.inflight[key] = hash
	a.mu.Unlock()
}

func (a *Adapter) clear(key opKey) {
	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()
}

// submitResult is the slice of the submit response we consume.
type submitResult struct {
	EngineResult string `json:"engine_result"`
	TxJSON       struct {
		Hash     string `json:"hash"`
		Sequence uint32 `json:"Sequence"`
	} `json:"tx_json"`
}

// SubmitInfo describes a validated transaction.
type SubmitInfo struct {
	Sequence uint32
	Hash     string
}

// submitAndWait signs and submits tx server-side, then polls until the
// transaction appears in a validated ledger. If key is non-nil the tx hash
// is recorded before waiting so a retried invocation polls rather than
// resubmits.
func (a *Adapter) submitAndWait(ctx context.Context, op string, key *opKey, tx map[string]any) (*SubmitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.rpc.Call(ctx, "submit", map[string]any{
		"tx_json":   tx,
		"secret":    a.wallet.Seed,
		"fail_hard": true,
	})
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			metrics.ObserveLedgerSubmission(op, "unreachable", time.Since(start))
			return nil, err
		}
		metrics.ObserveLedgerSubmission(op, "rejected", time.Since(start))
		return nil, &SubmissionError{Operation: op, Code: err.Error()}
	}

	var res submitResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("xrpl: decode submit response: %w", err)
	}

	if res.EngineResult != "tesSUCCESS" {
		metrics.ObserveLedgerSubmission(op, res.EngineResult, time.Since(start))
		return nil, &SubmissionError{Operation: op, Code: res.EngineResult}
	}

	if key != nil {
		a.record(*key, res.TxJSON.Hash)
	}

	if err := a.waitValidated(ctx, op, opKeyOrZero(key), res.TxJSON.Hash, start); err != nil {
		return nil, err
	}
	return &SubmitInfo{Sequence: res.TxJSON.Sequence, Hash: res.TxJSON.Hash}, nil
}

func opKeyOrZero(key *opKey) opKey {
	if key == nil {
		return opKey{}
	}
	return *key
}

// txStatus is the slice of the tx response we consume.
type txStatus struct {
	Validated bool `json:"validated"`
	Meta      struct {
		TransactionResult string `json:"TransactionResult"`
	} `json:"meta"`
}

// waitValidated polls the tx by hash until it is in a validated ledger. On
// timeout it re-queries once more with backoff before surfacing
// ErrIndeterminate; it never assumes failure.
func (a *Adapter) waitValidated(ctx context.Context, op string, key opKey, hash string, start time.Time) error {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		status, err := a.queryTx(ctx, hash)
		if err == nil && status.Validated {
			return a.settle(op, key, status, start)
		}
		if err != nil && errors.Is(err, ErrUnreachable) {
			break // fall through to the final re-query
		}

		select {
		case <-ctx.Done():
			return a.finalRequery(op, key, hash, start)
		case <-ticker.C:
		}
	}
	return a.finalRequery(op, key, hash, start)
}

// finalRequery makes a last attempt, on a fresh deadline, to learn the
// transaction's fate before reporting the outcome unknown.
func (a *Adapter) finalRequery(op string, key opKey, hash string, start time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var status *txStatus
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		s, err := a.queryTx(ctx, hash)
		if err != nil {
			return err
		}
		if !s.Validated {
			return fmt.Errorf("tx %s not yet validated", hash)
		}
		status = s
		return nil
	})
	if err != nil || status == nil {
		metrics.ObserveLedgerSubmission(op, "indeterminate", time.Since(start))
		return fmt.Errorf("%w: tx %s", ErrIndeterminate, hash)
	}
	return a.settle(op, key, status, start)
}

// settle interprets a validated transaction's metadata.
func (a *Adapter) settle(op string, key opKey, status *txStatus, start time.Time) error {
	if key != (opKey{}) {
		a.clear(key)
	}
	if status.Meta.TransactionResult != "tesSUCCESS" {
		metrics.ObserveLedgerSubmission(op, status.Meta.TransactionResult, time.Since(start))
		return &SubmissionError{Operation: op, Code: status.Meta.TransactionResult}
	}
	metrics.ObserveLedgerSubmission(op, "tesSUCCESS", time.Since(start))
	return nil
}

func (a *Adapter) queryTx(ctx context.Context, hash string) (*txStatus, error) {
	raw, err := a.rpc.Call(ctx, "tx", map[string]any{"transaction": hash})
	if err != nil {
		return nil, err
	}
	var status txStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("xrpl: decode tx response: %w", err)
	}
	return &status, nil
}
