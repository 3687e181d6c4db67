package escrow

import (
	"fmt"
	"time"
)

// Deadline bounds, in days.
const (
	MinDeadlineDays = 1
	MaxDeadlineDays = 365
)

// Deadlines are the three instants governing one escrow's time-lock window.
// Invariant: FinishAfter < Deadline < CancelAfter, so there is never a gap
// where neither finishing nor cancelling is legal.
type Deadlines struct {
	// FinishAfter is when an EscrowFinish becomes legal on the ledger. A
	// short grace delay after creation, not tied to the deadline.
	FinishAfter time.Time
	// Deadline is the verification cutoff: once passed, cancellation
	// becomes legal locally and release should no longer be expected.
	Deadline time.Time
	// CancelAfter is when an EscrowCancel becomes legal on the ledger.
	// Held slightly past Deadline so a last-moment finish can still settle.
	CancelAfter time.Time
}

// ComputeDeadlines converts a requested duration in days into absolute
// instants. Durations outside [1, 365] are rejected, never clamped.
func ComputeDeadlines(now time.Time, days int, finishGrace, cancelBuffer time.Duration) (Deadlines, error) {
	if days < MinDeadlineDays || days > MaxDeadlineDays {
		return Deadlines{}, fmt.Errorf("%w: deadline_days %d not in [%d, %d]",
			ErrInvalidDuration, days, MinDeadlineDays, MaxDeadlineDays)
	}

	d := Deadlines{
		FinishAfter: now.Add(finishGrace),
		Deadline:    now.Add(time.Duration(days) * 24 * time.Hour),
		CancelAfter: now.Add(time.Duration(days) * 24 * time.Hour).Add(cancelBuffer),
	}

	if !d.FinishAfter.Before(d.Deadline) {
		return Deadlines{}, fmt.Errorf("%w: finish grace %s swallows the %d-day window",
			ErrInvalidDuration, finishGrace, days)
	}
	return d, nil
}
