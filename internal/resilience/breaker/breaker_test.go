package breaker

import (
	"testing"
	"time"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 3, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.IsOpen() {
			t.Fatalf("open after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("should be open after threshold failures")
	}
}

func TestBreaker_StaysOpenUntilTimeout(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 1, Timeout: 50 * time.Millisecond})

	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("should be open")
	}
	if !b.IsOpen() {
		t.Fatal("should stay open inside the cooldown")
	}

	time.Sleep(60 * time.Millisecond)

	// Cooldown elapsed: IsOpen transitions Open -> HalfOpen and admits a trial.
	if b.IsOpen() {
		t.Error("should admit a trial call after the cooldown")
	}
	if got := b.Snapshot().State; got != "half_open" {
		t.Errorf("state = %q, want half_open", got)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 1, Timeout: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.IsOpen() // trigger the half-open transition

	b.RecordSuccess()

	snap := b.Snapshot()
	if snap.State != "closed" {
		t.Errorf("state = %q, want closed", snap.State)
	}
	if snap.FailureCount != 0 {
		t.Errorf("failure count = %d, want reset to 0", snap.FailureCount)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 5, Timeout: 10 * time.Millisecond})

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	b.IsOpen() // half-open now

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("a failed trial call should reopen the breaker immediately")
	}
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 1, Timeout: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if b.IsOpen() {
		t.Fatal("first caller after the cooldown should be admitted as the trial")
	}
	if !b.IsOpen() {
		t.Error("second caller must be rejected while the trial is in flight")
	}

	// The trial succeeds: the breaker closes and admits everyone again.
	b.RecordSuccess()
	if b.IsOpen() {
		t.Error("should be closed after a successful trial")
	}
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := newBreaker("op", Config{Threshold: 3, Timeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// Counter was reset: two more failures still don't reach the threshold.
	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Error("failure counter should have been reset by the success")
	}
}

func TestRegistry_OneBreakerPerName(t *testing.T) {
	r := NewRegistry(Config{})

	a := r.Get("op-a")
	if r.Get("op-a") != a {
		t.Error("same name must return the same breaker")
	}
	if r.Get("op-b") == a {
		t.Error("different names must get distinct breakers")
	}
}

func TestRegistry_FirstConfigWins(t *testing.T) {
	r := NewRegistry(Config{})

	r.GetWith("op", Config{Threshold: 1, Timeout: time.Minute})
	b := r.GetWith("op", Config{Threshold: 100, Timeout: time.Minute})

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("breaker should keep the config it was created with")
	}
}

func TestRegistry_Snapshots(t *testing.T) {
	r := NewRegistry(Config{})
	r.Get("a").RecordFailure()
	r.Get("b")

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
}
