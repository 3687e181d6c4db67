package escrow

import (
	"errors"
	"testing"
	"time"
)

func TestComputeDeadlinesWindowOrdering(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d, err := ComputeDeadlines(now, 30, 5*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("ComputeDeadlines failed: %v", err)
	}

	if !d.FinishAfter.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("FinishAfter = %v", d.FinishAfter)
	}
	if !d.Deadline.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Errorf("Deadline = %v", d.Deadline)
	}
	if !d.CancelAfter.After(d.Deadline) {
		t.Error("CancelAfter must follow Deadline")
	}
	if !d.FinishAfter.Before(d.Deadline) {
		t.Error("FinishAfter must precede Deadline")
	}
}

func TestComputeDeadlinesRejectsOutOfRange(t *testing.T) {
	now := time.Now()
	for _, days := range []int{0, -5, 366, 10000} {
		_, err := ComputeDeadlines(now, days, 5*time.Minute, 5*time.Minute)
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("days=%d: expected ErrInvalidDuration, got %v", days, err)
		}
	}
}

func TestComputeDeadlinesAcceptsBounds(t *testing.T) {
	now := time.Now()
	for _, days := range []int{1, 365} {
		if _, err := ComputeDeadlines(now, days, 5*time.Minute, 5*time.Minute); err != nil {
			t.Errorf("days=%d should be accepted: %v", days, err)
		}
	}
}
