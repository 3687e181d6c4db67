package escrow

import (
	"context"
	"testing"
	"time"
)

func TestSweeperStopWithoutStartReturns(t *testing.T) {
	fx := newFixture()
	sw := NewSweeper(fx.svc, time.Hour)

	finished := make(chan struct{})
	go func() {
		sw.Stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Stop without Start must not block")
	}
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	fx := newFixture()
	sw := NewSweeper(fx.svc, time.Hour)

	sw.Start(context.Background())
	sw.Stop()
	sw.Stop()
}

func TestSweeperStartTwiceRunsOneLoop(t *testing.T) {
	fx := newFixture()
	sw := NewSweeper(fx.svc, time.Hour)

	ctx := context.Background()
	sw.Start(ctx)
	sw.Start(ctx)
	sw.Stop()
}
