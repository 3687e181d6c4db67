package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request beyond burst should be denied")
	}
}

func TestAllowIndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("10.0.0.1") {
		t.Fatal("first key should be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second key should be allowed")
	}
}

func TestTokensRefill(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("second immediate request should be denied")
	}

	time.Sleep(50 * time.Millisecond) // 100 tokens/sec refill

	if !l.Allow("10.0.0.1") {
		t.Fatal("request after refill should be allowed")
	}
}
