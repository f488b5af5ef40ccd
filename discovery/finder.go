// Package discovery implements the lazy-bind retry loop that decouples
// interceptor initialization order from host store creation order.
// Candidate lookups are injected as an ordered list of functions rather
// than hardcoded global references, so the loop is testable without a
// real host runtime.
package discovery

import (
	"errors"
	"sync"
	"time"

	"github.com/statetap/statetap/core"
	"github.com/statetap/statetap/telemetry"
)

// Candidate is one well-known location a store may appear at. Lookup
// returns the store and true once it exists. Lookups must be cheap and
// side-effect free; they are polled repeatedly.
type Candidate struct {
	Name   string
	Lookup func() (interface{}, bool)
}

// BindFunc binds a discovered candidate. Returning core.ErrAlreadyBound
// tells the finder a manual bind won the race; the finder stops without
// treating it as a failure.
type BindFunc func(target interface{}) error

// Config is the retry budget for one discovery run. MaxAttempts counts
// every poll, including the immediate one performed by Start.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultConfig returns the default budget: one immediate poll plus
// four scheduled retries, 500ms apart.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		Delay:       500 * time.Millisecond,
	}
}

// Finder polls an ordered candidate list until one appears, then binds
// it, or gives up once the budget is spent. The pending timer is always
// cancellable: Stop guarantees a torn-down interceptor can never be
// auto-bound by a late poll.
type Finder struct {
	mu         sync.Mutex
	cfg        Config
	candidates []Candidate
	bind       BindFunc
	logger     core.Logger

	timer    *time.Timer
	attempts int
	state    core.DiscoveryState

	collector telemetry.Collector
	variant   string
}

// NewFinder creates a finder. A nil config uses DefaultConfig; a nil
// logger discards diagnostics.
func NewFinder(cfg *Config, candidates []Candidate, bind BindFunc, logger core.Logger) *Finder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Finder{
		cfg:        *cfg,
		candidates: candidates,
		bind:       bind,
		logger:     logger,
		state:      core.DiscoveryIdle,
		collector:  &telemetry.NoOpCollector{},
	}
}

// SetCollector wires metric emission for discovery polls. The variant
// name labels the emitted metrics.
func (f *Finder) SetCollector(collector telemetry.Collector, variant string) {
	if collector == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collector = collector
	f.variant = variant
}

// Start performs the immediate first poll and schedules retries as
// needed. Returns true when a candidate was found and bound on that
// first poll. Calling Start on a finder that is already running,
// bound, or exhausted is a logged no-op.
func (f *Finder) Start() bool {
	f.mu.Lock()
	if f.state != core.DiscoveryIdle {
		f.logger.Warn("Discovery already started", map[string]interface{}{
			"state": string(f.state),
		})
		f.mu.Unlock()
		return false
	}
	f.state = core.DiscoveryPending
	f.mu.Unlock()

	return f.poll()
}

// Stop cancels any pending retry. Safe to call at any time, repeatedly.
// After Stop the finder never fires again.
func (f *Finder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.state == core.DiscoveryPending || f.state == core.DiscoveryIdle {
		f.state = core.DiscoveryStopped
	}
}

// State returns the finder's current lifecycle state
func (f *Finder) State() core.DiscoveryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Attempts returns how many polls have run so far
func (f *Finder) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// PollOnce runs a single synchronous discovery pass outside the retry
// budget. It backs the AutoFindStore convenience operation and respects
// the same already-bound precondition as scheduled polls.
func (f *Finder) PollOnce() bool {
	target, name, ok := f.lookup()
	if !ok {
		return false
	}
	return f.bindCandidate(target, name)
}

// poll runs one budgeted attempt and schedules the next when needed.
// Returns true when a candidate was bound.
func (f *Finder) poll() bool {
	f.mu.Lock()
	if f.state != core.DiscoveryPending {
		// Stopped (or manually bound) while the timer was in flight.
		f.mu.Unlock()
		return false
	}
	f.attempts++
	attempt := f.attempts
	f.timer = nil
	collector, variant := f.collector, f.variant
	f.mu.Unlock()

	if target, name, ok := f.lookup(); ok {
		collector.RecordDiscoveryPoll(variant, "found")
		if f.bindCandidate(target, name) {
			return true
		}
		// Bind was rejected: either a manual bind already installed a
		// target, or the candidate failed validation. Either way the
		// diagnostic has been emitted; do not keep polling against it.
		f.mu.Lock()
		f.state = core.DiscoveryStopped
		f.mu.Unlock()
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != core.DiscoveryPending {
		return false
	}

	if attempt >= f.cfg.MaxAttempts {
		f.state = core.DiscoveryExhausted
		f.collector.RecordDiscoveryPoll(f.variant, "exhausted")
		f.logger.Warn("Store discovery exhausted, bind the store manually via SetStore", map[string]interface{}{
			"attempts":   attempt,
			"candidates": len(f.candidates),
		})
		return false
	}

	f.collector.RecordDiscoveryPoll(f.variant, "miss")

	f.logger.Debug("Store not found yet, scheduling retry", map[string]interface{}{
		"attempt":      attempt,
		"max_attempts": f.cfg.MaxAttempts,
		"delay":        f.cfg.Delay.String(),
	})
	f.timer = time.AfterFunc(f.cfg.Delay, func() { f.poll() })
	return false
}

// lookup scans the candidate list in order and returns the first
// present candidate.
func (f *Finder) lookup() (interface{}, string, bool) {
	for _, c := range f.candidates {
		if c.Lookup == nil {
			continue
		}
		if target, ok := c.Lookup(); ok && target != nil {
			return target, c.Name, true
		}
	}
	return nil, "", false
}

func (f *Finder) bindCandidate(target interface{}, name string) bool {
	if err := f.bind(target); err != nil {
		if errors.Is(err, core.ErrAlreadyBound) {
			f.logger.Debug("Discovered candidate ignored, a target is already bound", map[string]interface{}{
				"candidate": name,
			})
		} else {
			f.logger.Error("Failed to bind discovered store", map[string]interface{}{
				"candidate": name,
				"error":     err.Error(),
			})
		}
		return false
	}

	f.mu.Lock()
	f.state = core.DiscoveryBound
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.logger.Info("Store discovered and bound", map[string]interface{}{
		"candidate": name,
	})
	return true
}
