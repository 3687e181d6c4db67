package escrow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agrilock/agrilock/internal/logging"
)

// Sweeper periodically expires pending escrows whose deadline has lapsed,
// so reclamation does not depend on anyone calling the cancel endpoint.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	batch    int
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewSweeper creates an expiry sweeper. A non-positive interval defaults to
// one minute.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		batch:    100,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Repeated calls are no-ops; call Stop to
// halt it.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run(ctx)
}

// Stop halts the sweeper and waits for an in-flight sweep to finish. Safe to
// call more than once, and without a prior Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started.Load() {
			<-s.done
		}
	})
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.svc.SweepExpired(ctx, s.batch); n > 0 {
				logging.L(ctx).Info("expiry sweep", slog.Int("expired", n))
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
