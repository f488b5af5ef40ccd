package discovery

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/statetap/statetap/core"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 5, Delay: 10 * time.Millisecond}
}

// waitForState polls until the finder reaches the wanted state or the
// deadline passes. Keeps timing-sensitive assertions stable in CI.
func waitForState(t *testing.T, f *Finder, want core.DiscoveryState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Finder did not reach state %q within %v, state is %q", want, timeout, f.State())
}

// TestFinderImmediateBind tests binding on the immediate first poll
func TestFinderImmediateBind(t *testing.T) {
	store := struct{ name string }{"store"}
	var bindCalls int32

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "globalStore", Lookup: func() (interface{}, bool) { return &store, true }}},
		func(target interface{}) error {
			atomic.AddInt32(&bindCalls, 1)
			return nil
		},
		nil)

	if !f.Start() {
		t.Fatal("Expected Start to bind immediately")
	}
	if got := f.State(); got != core.DiscoveryBound {
		t.Errorf("Expected bound state, got %q", got)
	}
	if f.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", f.Attempts())
	}
	if atomic.LoadInt32(&bindCalls) != 1 {
		t.Errorf("Expected exactly 1 bind call, got %d", bindCalls)
	}
}

// TestFinderExhaustsBudget tests exactly MaxAttempts polls occur when
// no candidate ever appears
func TestFinderExhaustsBudget(t *testing.T) {
	var polls int32

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "missing", Lookup: func() (interface{}, bool) {
			atomic.AddInt32(&polls, 1)
			return nil, false
		}}},
		func(interface{}) error { return nil },
		nil)

	if f.Start() {
		t.Fatal("Expected Start not to bind")
	}

	waitForState(t, f, core.DiscoveryExhausted, time.Second)

	if got := atomic.LoadInt32(&polls); got != 5 {
		t.Errorf("Expected exactly 5 polls (1 immediate + 4 retries), got %d", got)
	}
	if f.Attempts() != 5 {
		t.Errorf("Expected 5 attempts recorded, got %d", f.Attempts())
	}

	// No further polls after exhaustion.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&polls); got != 5 {
		t.Errorf("Expected no polls after exhaustion, got %d total", got)
	}
}

// TestFinderBindsOnThirdAttempt tests late-appearing candidates bind
// exactly once and polling stops
func TestFinderBindsOnThirdAttempt(t *testing.T) {
	store := struct{ name string }{"store"}
	var lookups, bindCalls int32

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "lateStore", Lookup: func() (interface{}, bool) {
			if atomic.AddInt32(&lookups, 1) >= 3 {
				return &store, true
			}
			return nil, false
		}}},
		func(interface{}) error {
			atomic.AddInt32(&bindCalls, 1)
			return nil
		},
		nil)

	f.Start()
	waitForState(t, f, core.DiscoveryBound, time.Second)

	if got := atomic.LoadInt32(&bindCalls); got != 1 {
		t.Errorf("Expected exactly 1 bind, got %d", got)
	}
	if f.Attempts() != 3 {
		t.Errorf("Expected 3 attempts, got %d", f.Attempts())
	}

	// No polls continue after binding.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&lookups); got != 3 {
		t.Errorf("Expected lookups to stop after bind, got %d", got)
	}
}

// TestFinderStopCancelsPendingRetry tests the pending timer is
// cancelled so a stopped finder can never bind later
func TestFinderStopCancelsPendingRetry(t *testing.T) {
	var available atomic.Bool
	var bindCalls int32
	store := struct{ name string }{"store"}

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "store", Lookup: func() (interface{}, bool) {
			if available.Load() {
				return &store, true
			}
			return nil, false
		}}},
		func(interface{}) error {
			atomic.AddInt32(&bindCalls, 1)
			return nil
		},
		nil)

	f.Start()
	f.Stop()

	// The store appearing after Stop must not trigger a bind.
	available.Store(true)
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&bindCalls); got != 0 {
		t.Errorf("Expected no bind after Stop, got %d", got)
	}
	if got := f.State(); got != core.DiscoveryStopped {
		t.Errorf("Expected stopped state, got %q", got)
	}
}

// TestFinderStopIdempotent tests repeated Stop calls are safe
func TestFinderStopIdempotent(t *testing.T) {
	f := NewFinder(fastConfig(), nil, func(interface{}) error { return nil }, nil)
	f.Stop()
	f.Stop()
	if got := f.State(); got != core.DiscoveryStopped {
		t.Errorf("Expected stopped state, got %q", got)
	}
}

// TestFinderDoesNotOverrideManualBind tests that a poll firing after a
// manual bind observes the rejection and stands down
func TestFinderDoesNotOverrideManualBind(t *testing.T) {
	var lookups int32
	store := struct{ name string }{"store"}

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "store", Lookup: func() (interface{}, bool) {
			// Appears on the second poll, after the "manual" bind.
			if atomic.AddInt32(&lookups, 1) >= 2 {
				return &store, true
			}
			return nil, false
		}}},
		func(interface{}) error { return core.ErrAlreadyBound },
		nil)

	f.Start()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && f.State() == core.DiscoveryPending {
		time.Sleep(2 * time.Millisecond)
	}

	if got := f.State(); got != core.DiscoveryStopped {
		t.Errorf("Expected finder to stand down after rejected bind, got %q", got)
	}
}

// TestFinderCandidateOrder tests the first present candidate wins
func TestFinderCandidateOrder(t *testing.T) {
	first := struct{ name string }{"first"}
	second := struct{ name string }{"second"}
	var bound interface{}

	f := NewFinder(fastConfig(),
		[]Candidate{
			{Name: "reduxStore", Lookup: func() (interface{}, bool) { return &first, true }},
			{Name: "store", Lookup: func() (interface{}, bool) { return &second, true }},
		},
		func(target interface{}) error {
			bound = target
			return nil
		},
		nil)

	if !f.Start() {
		t.Fatal("Expected immediate bind")
	}
	if bound != &first {
		t.Error("Expected the first candidate in order to win")
	}
}

// TestFinderBindErrorStops tests a failing bind emits a diagnostic and
// stops instead of hammering the same broken candidate
func TestFinderBindErrorStops(t *testing.T) {
	store := struct{ name string }{"store"}
	bindErr := errors.New("capability missing")

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "store", Lookup: func() (interface{}, bool) { return &store, true }}},
		func(interface{}) error { return bindErr },
		nil)

	if f.Start() {
		t.Fatal("Expected Start not to report a bind")
	}
	if got := f.State(); got != core.DiscoveryStopped {
		t.Errorf("Expected stopped state after bind failure, got %q", got)
	}
}

// TestPollOnce tests the manual single-pass scan
func TestPollOnce(t *testing.T) {
	var available atomic.Bool
	store := struct{ name string }{"store"}

	f := NewFinder(fastConfig(),
		[]Candidate{{Name: "store", Lookup: func() (interface{}, bool) {
			if available.Load() {
				return &store, true
			}
			return nil, false
		}}},
		func(interface{}) error { return nil },
		nil)

	if f.PollOnce() {
		t.Error("Expected PollOnce to miss while store is absent")
	}

	available.Store(true)
	if !f.PollOnce() {
		t.Error("Expected PollOnce to bind once store is present")
	}
	if got := f.State(); got != core.DiscoveryBound {
		t.Errorf("Expected bound state, got %q", got)
	}
}

// TestDefaultConfig tests the default retry budget
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected default MaxAttempts=5, got %d", cfg.MaxAttempts)
	}
	if cfg.Delay != 500*time.Millisecond {
		t.Errorf("Expected default Delay=500ms, got %v", cfg.Delay)
	}
}

// TestStartTwice tests Start on a running finder is a no-op
func TestStartTwice(t *testing.T) {
	var polls int32
	f := NewFinder(&Config{MaxAttempts: 2, Delay: 50 * time.Millisecond},
		[]Candidate{{Name: "missing", Lookup: func() (interface{}, bool) {
			atomic.AddInt32(&polls, 1)
			return nil, false
		}}},
		func(interface{}) error { return nil },
		nil)

	f.Start()
	f.Start() // must not restart the budget

	if got := atomic.LoadInt32(&polls); got != 1 {
		t.Errorf("Expected a single immediate poll, got %d", got)
	}
	f.Stop()
}
