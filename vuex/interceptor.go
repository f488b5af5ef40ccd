// Package vuex provides the interceptor variant for Vuex-style stores,
// wrapping the store's commit so every mutation is bracketed by
// breadcrumbs.
package vuex

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
const Name = "vuex"

// Category tags every breadcrumb this variant emits.
const Category = "vuex"

// Mutation describes one committed mutation.
type Mutation struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// CommitFunc is the store's commit method
type CommitFunc func(mutationType string, payload interface{})

// SubscribeFunc receives every committed mutation with the state after it
type SubscribeFunc func(mutation Mutation, state map[string]interface{})

// Store is the capability set this variant requires from a target.
type Store interface {
	State() map[string]interface{}
	Commit() CommitFunc
	SetCommit(fn CommitFunc)
	Subscribe(fn SubscribeFunc) (unsubscribe func())
}

// Interceptor wraps a Vuex-style store's commit.
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

// WithCandidates sets the ordered store discovery candidates
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

// New creates a vuex interceptor
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

func (i *Interceptor) Name() string { return Name }

// Init binds the SecureAPI facade and starts store discovery.
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
		return core.NewInterceptorError("vuex.Init", Name, core.ErrMissingAPI)
	}
	i.api = api

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

// SetStore explicitly binds a store, wrapping its commit. Rejected when
// a store is already bound.
func (i *Interceptor) SetStore(store Store) error {
	i.mu.RLock()
	initialized := i.api != nil
	finder := i.finder
	i.mu.RUnlock()

	if !initialized {
		i.logger.Warn("SetStore called before init", map[string]interface{}{
			"interceptor": Name,
		})
		return core.NewInterceptorError("vuex.SetStore", Name, core.ErrNotInitialized)
	}

	if store == nil || store.Commit() == nil {
		i.collector.RecordBind(Name, "invalid")
		i.logger.Error("Target store is missing the required commit capability", map[string]interface{}{
			"interceptor": Name,
			"store_nil":   store == nil,
		})
		return core.NewInterceptorError("vuex.SetStore", Name, core.ErrInvalidTarget)
	}

	err := i.binding.Engage(func() (func(), func(), error) {
		original := store.Commit()
		store.SetCommit(i.wrapCommit(original, store))
		restore := func() { store.SetCommit(original) }
		unsubscribe := store.Subscribe(func(Mutation, map[string]interface{}) {})
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

	if finder != nil {
		finder.Stop()
	}

	i.collector.RecordBind(Name, "bound")
	i.logger.Info("Store bound, commit is instrumented", map[string]interface{}{
		"interceptor": Name,
		"id":          i.id,
	})
	return nil
}

// AutoFindStore runs one synchronous discovery pass. Returns whether a
// store is bound afterwards.
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

// Destroy restores the original commit, cancels pending discovery, and
// clears the facade. Idempotent.
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

func (i *Interceptor) bindDiscovered(target interface{}) error {
	store, ok := target.(Store)
	if !ok {
		return core.NewInterceptorError("vuex.bindDiscovered", Name, core.ErrInvalidTarget)
	}
	return i.SetStore(store)
}

func (i *Interceptor) currentAPI() core.SecureAPI {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.api != nil {
		return i.api
	}
	return &core.NoOpAPI{}
}

// wrapCommit builds the instrumented commit. Commits have no return
// value, so the failure path here is a panicking mutation handler: the
// payload is forwarded and the identical panic value re-raised.
func (i *Interceptor) wrapCommit(original CommitFunc, store Store) CommitFunc {
	return func(mutationType string, payload interface{}) {
		api := i.currentAPI()

		pre := map[string]interface{}{
			"mutation": mutationType,
			"payload":  payload,
			"state":    store.State(),
		}
		if i.cfg.Breadcrumbs.CloneData {
			pre = core.CloneData(pre)
		}
		api.AddBreadcrumb(Category, "Committing mutation: "+mutationType, pre)
		i.collector.RecordBreadcrumb(Name, Category)

		start := time.Now()
		defer func() {
			i.collector.RecordWrapDuration(Name, float64(time.Since(start).Microseconds())/1000.0)
			if r := recover(); r != nil {
				errPayload := core.ErrorPayload{
					Kind: "vuex.commit.panic",
					Error: core.ErrorDetail{
						Message: fmt.Sprint(r),
						Stack:   string(debug.Stack()),
					},
					Action: core.CloneData(map[string]interface{}{
						"mutation": mutationType,
						"payload":  payload,
					}),
				}
				api.SendError(errPayload.Fields(), nil)
				i.collector.RecordErrorForwarded(Name, errPayload.Kind)
				panic(r)
			}
		}()

		original(mutationType, payload)

		post := map[string]interface{}{
			"mutation": mutationType,
			"state":    store.State(),
		}
		if i.cfg.Breadcrumbs.CloneData {
			post = core.CloneData(post)
		}
		api.AddBreadcrumb(Category, "Mutation committed: "+mutationType, post)
		i.collector.RecordBreadcrumb(Name, Category)
	}
}
