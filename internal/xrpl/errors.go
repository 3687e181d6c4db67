package xrpl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the websocket connection could not be established
	// or was lost before the server acknowledged the request. The submission
	// definitively did not reach the ledger.
	ErrUnreachable = errors.New("xrpl: ledger unreachable")

	// ErrSubmissionFailed means the ledger definitively rejected a
	// transaction. Local state is guaranteed unchanged on the ledger side.
	ErrSubmissionFailed = errors.New("xrpl: submission failed")

	// ErrIndeterminate means a submitted transaction's outcome could not be
	// confirmed before the timeout: the ledger may or may not have applied
	// it. Callers must not treat this as either success or failure.
	ErrIndeterminate = errors.New("xrpl: submission outcome indeterminate")
)

// SubmissionError carries the ledger's own result code for a definitive
// rejection (e.g. tecNO_PERMISSION when the finish window is not open yet).
type SubmissionError struct {
	Operation string // "escrow_create", "escrow_finish", "escrow_cancel"
	Code      string // XRPL engine result, e.g. "tecNO_PERMISSION"
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("xrpl: %s rejected by ledger: %s", e.Operation, e.Code)
}

// Unwrap lets callers branch with errors.Is(err, ErrSubmissionFailed).
func (e *SubmissionError) Unwrap() error { return ErrSubmissionFailed }
