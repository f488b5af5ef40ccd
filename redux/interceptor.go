// Package redux provides the interceptor variant for Redux-style
// stores: every dispatched action is bracketed by breadcrumbs and
// failed dispatches are forwarded to the error sink.
package redux

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/statetap/statetap/binder"
	"github.com/statetap/statetap/core"
	"github.com/statetap/statetap/discovery"
	"github.com/statetap/statetap/telemetry"
)

// Name is the identifier this variant presents to the registry.
const Name = "redux"

// Category tags every breadcrumb this variant emits.
const Category = "redux"

// Action is a Redux-style action: a "type" field plus arbitrary payload.
type Action map[string]interface{}

// Type returns the action's type tag, or "unknown" when absent.
func (a Action) Type() string {
	if t, ok := a["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// DispatchFunc is the store's dispatch method
type DispatchFunc func(action Action) (interface{}, error)

// Store is the capability set this variant requires from a target: a
// replaceable dispatch slot, a state snapshot, and change-notification
// subscription returning an unsubscribe handle.
type Store interface {
	GetState() map[string]interface{}
	Dispatch() DispatchFunc
	SetDispatch(fn DispatchFunc)
	Subscribe(listener func()) (unsubscribe func())
}

// Interceptor wraps a Redux-style store's dispatch. All lifecycle
// operations degrade to logged no-ops on misuse; only the instrumented
// dispatch itself re-raises host errors.
type Interceptor struct {
	mu         sync.RWMutex
	id         string
	api        core.SecureAPI
	store      Store
	binding    binder.Binding
	finder     *discovery.Finder
	candidates []discovery.Candidate
	cfg        *core.Config
	logger     core.Logger
	collector  telemetry.Collector
}

// Option configures an Interceptor
type Option func(*Interceptor)

// WithConfig sets the shared configuration
func WithConfig(cfg *core.Config) Option {
	return func(i *Interceptor) {
		if cfg != nil {
			i.cfg = cfg
		}
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithCandidates sets the ordered store discovery candidates. The first
// present candidate wins.
func WithCandidates(candidates ...discovery.Candidate) Option {
	return func(i *Interceptor) { i.candidates = candidates }
}

// WithCollector wires metric emission
func WithCollector(collector telemetry.Collector) Option {
	return func(i *Interceptor) {
		if collector != nil {
			i.collector = collector
		}
	}
}

// New creates a redux interceptor
func New(opts ...Option) *Interceptor {
	i := &Interceptor{
		id:        core.GenerateID(Name),
		cfg:       core.DefaultConfig(),
		logger:    &core.NoOpLogger{},
		collector: &telemetry.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns the variant identifier
func (i *Interceptor) Name() string { return Name }

// Init binds the SecureAPI facade and starts store discovery. Double
// init is a logged no-op.
func (i *Interceptor) Init(ctx context.Context, api core.SecureAPI) error {
	i.mu.Lock()
	if i.api != nil {
		i.mu.Unlock()
		i.logger.Warn("Interceptor already initialized", map[string]interface{}{
			"interceptor": Name,
			"id":          i.id,
		})
		return nil
	}
	if api == nil {
		i.mu.Unlock()
		i.logger.Error("Cannot initialize without an API facade", map[string]interface{}{
			"interceptor": Name,
		})
		return core.NewInterceptorError("redux.Init", Name, core.ErrMissingAPI)
	}
	i.api = api

	// The finder exists whenever candidates do, so AutoFindStore can run
	// a manual pass even when the automatic retry loop is disabled.
	var finder *discovery.Finder
	if len(i.candidates) > 0 {
		finder = discovery.NewFinder(
			&discovery.Config{
				MaxAttempts: i.cfg.Discovery.MaxAttempts,
				Delay:       i.cfg.Discovery.Delay,
			},
			i.candidates,
			i.bindDiscovered,
			i.logger,
		)
		finder.SetCollector(i.collector, Name)
		i.finder = finder
	}
	i.mu.Unlock()

	i.logger.Info("Interceptor initialized", map[string]interface{}{
		"interceptor":       Name,
		"id":                i.id,
		"api_version":       api.APIVersion(),
		"discovery_enabled": finder != nil && i.cfg.Discovery.Enabled,
	})

	if finder != nil && i.cfg.Discovery.Enabled {
		finder.Start()
	}
	return nil
}

// SetStore explicitly binds a store, wrapping its dispatch. This is the
// recommended path; it supersedes discovery regardless of the retry
// loop's state. Rejected when a store is already bound.
func (i *Interceptor) SetStore(store Store) error {
	i.mu.RLock()
	initialized := i.api != nil
	finder := i.finder
	i.mu.RUnlock()

	if !initialized {
		i.logger.Warn("SetStore called before init", map[string]interface{}{
			"interceptor": Name,
		})
		return core.NewInterceptorError("redux.SetStore", Name, core.ErrNotInitialized)
	}

	if store == nil || store.Dispatch() == nil {
		i.collector.RecordBind(Name, "invalid")
		i.logger.Error("Target store is missing the required dispatch capability", map[string]interface{}{
			"interceptor": Name,
			"store_nil":   store == nil,
		})
		return core.NewInterceptorError("redux.SetStore", Name, core.ErrInvalidTarget)
	}

	err := i.binding.Engage(func() (func(), func(), error) {
		original := store.Dispatch()
		store.SetDispatch(i.wrapDispatch(original, store))
		restore := func() { store.SetDispatch(original) }
		// The subscription does no work of its own; it reserves the
		// unsubscribe handle so teardown leaves no listener behind.
		unsubscribe := store.Subscribe(func() {})
		return restore, unsubscribe, nil
	})
	if err != nil {
		i.collector.RecordBind(Name, "rejected")
		i.logger.Warn("Store bind rejected", map[string]interface{}{
			"interceptor": Name,
			"error":       err.Error(),
		})
		return err
	}

	i.mu.Lock()
	i.store = store
	i.mu.Unlock()

	// A still-pending discovery timer must never fire against a store
	// the host chose explicitly.
	if finder != nil {
		finder.Stop()
	}

	i.collector.RecordBind(Name, "bound")
	i.logger.Info("Store bound, dispatch is instrumented", map[string]interface{}{
		"interceptor": Name,
		"id":          i.id,
	})
	return nil
}

// AutoFindStore runs one synchronous discovery pass over the candidate
// list and binds the first present store. Returns whether a store is
// bound afterwards.
func (i *Interceptor) AutoFindStore() bool {
	i.mu.RLock()
	initialized := i.api != nil
	finder := i.finder
	i.mu.RUnlock()

	if !initialized {
		i.logger.Warn("AutoFindStore called before init", map[string]interface{}{
			"interceptor": Name,
		})
		return false
	}
	if i.binding.Bound() {
		return true
	}
	if finder == nil {
		return false
	}
	return finder.PollOnce()
}

// Destroy unconditionally unwinds: restores the original dispatch if
// bound, cancels any pending discovery retry, releases the unsubscribe
// handle, and clears the facade. Idempotent.
func (i *Interceptor) Destroy() error {
	i.mu.Lock()
	if i.api == nil {
		i.mu.Unlock()
		i.logger.Warn("Destroy called on uninitialized interceptor", map[string]interface{}{
			"interceptor": Name,
		})
		return nil
	}
	finder := i.finder
	wasBound := i.binding.Bound()
	i.api = nil
	i.store = nil
	i.finder = nil
	i.mu.Unlock()

	if finder != nil {
		finder.Stop()
	}
	i.binding.Unwind()

	if wasBound {
		i.collector.RecordUnwind(Name)
	}
	i.logger.Info("Interceptor destroyed", map[string]interface{}{
		"interceptor": Name,
		"id":          i.id,
		"was_bound":   wasBound,
	})
	return nil
}

// Info returns a status snapshot for diagnostics
func (i *Interceptor) Info() core.InterceptorInfo {
	i.mu.RLock()
	defer i.mu.RUnlock()

	info := core.InterceptorInfo{
		Name:           Name,
		ID:             i.id,
		Initialized:    i.api != nil,
		Bound:          i.binding.Bound(),
		DiscoveryState: core.DiscoveryIdle,
		LastChange:     time.Now(),
	}
	if i.api != nil {
		info.APIVersion = i.api.APIVersion()
	}
	if i.finder != nil {
		info.DiscoveryState = i.finder.State()
		info.DiscoveryAttempts = i.finder.Attempts()
	}
	return info
}

// bindDiscovered adapts a discovered candidate for SetStore
func (i *Interceptor) bindDiscovered(target interface{}) error {
	store, ok := target.(Store)
	if !ok {
		return core.NewInterceptorError("redux.bindDiscovered", Name, core.ErrInvalidTarget)
	}
	return i.SetStore(store)
}

// currentAPI returns the live facade, or a no-op stand-in when the
// interceptor was destroyed while a wrapped dispatch was still
// installed on a store held elsewhere.
func (i *Interceptor) currentAPI() core.SecureAPI {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.api != nil {
		return i.api
	}
	return &core.NoOpAPI{}
}

// wrapDispatch builds the instrumented dispatch. The wrapped call runs
// synchronously on the caller's stack with this-preserving semantics:
// aside from breadcrumb and error side effects it behaves exactly like
// the original, returning its result and re-raising its failures
// unchanged.
func (i *Interceptor) wrapDispatch(original DispatchFunc, store Store) DispatchFunc {
	return func(action Action) (result interface{}, err error) {
		api := i.currentAPI()
		actionType := action.Type()

		pre := map[string]interface{}{
			"action": map[string]interface{}(action),
			"state":  store.GetState(),
		}
		if i.cfg.Breadcrumbs.CloneData {
			pre = core.CloneData(pre)
		}
		api.AddBreadcrumb(Category, "Dispatching action: "+actionType, pre)
		i.collector.RecordBreadcrumb(Name, Category)

		start := time.Now()
		defer func() {
			i.collector.RecordWrapDuration(Name, float64(time.Since(start).Microseconds())/1000.0)
			if r := recover(); r != nil {
				payload := core.ErrorPayload{
					Kind: "redux.dispatch.panic",
					Error: core.ErrorDetail{
						Message: fmt.Sprint(r),
						Stack:   string(debug.Stack()),
					},
					Action: core.CloneData(map[string]interface{}(action)),
				}
				api.SendError(payload.Fields(), nil)
				i.collector.RecordErrorForwarded(Name, payload.Kind)
				panic(r)
			}
		}()

		result, err = original(action)
		if err != nil {
			payload := core.ErrorPayload{
				Kind: "redux.dispatch.error",
				Error: core.ErrorDetail{
					Message: err.Error(),
				},
				Action: core.CloneData(map[string]interface{}(action)),
			}
			api.SendError(payload.Fields(), nil)
			i.collector.RecordErrorForwarded(Name, payload.Kind)
			return result, err
		}

		post := map[string]interface{}{
			"state": store.GetState(),
		}
		if i.cfg.Breadcrumbs.CloneData {
			post = core.CloneData(post)
		}
		api.AddBreadcrumb(Category, "Action dispatched: "+actionType, post)
		i.collector.RecordBreadcrumb(Name, Category)

		return result, nil
	}
}
