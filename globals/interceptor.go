// Package globals provides the interceptor variant for the runtime
// boundary: uncaught errors and unhandled rejections are captured at
// the host's global handler slots, forwarded to the error sink with the
// current breadcrumb trail attached, and chained to any handler that
// was installed before.
package globals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/statetap/statetap/binder"
	"github.com/statetap/statetap/core"
	"github.com/statetap/statetap/telemetry"
)

// Name is the identifier this variant presents to the registry.
const Name = "globals"

// Interceptor instruments a Host's global error handler slots.
type Interceptor struct {
	mu        sync.RWMutex
	id        string
	api       core.SecureAPI
	host      Host
	binding   binder.Binding
	logger    core.Logger
	collector telemetry.Collector
}

// Option configures an Interceptor
type Option func(*Interceptor)

// WithHost sets the host whose handler slots are instrumented on Init
func WithHost(host Host) Option {
	return func(i *Interceptor) { i.host = host }
}

// WithLogger sets the diagnostic logger
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithCollector wires metric emission
func WithCollector(collector telemetry.Collector) Option {
	return func(i *Interceptor) {
		if collector != nil {
			i.collector = collector
		}
	}
}

// New creates a globals interceptor
func New(opts ...Option) *Interceptor {
	i := &Interceptor{
		id:        core.GenerateID(Name),
		logger:    &core.NoOpLogger{},
		collector: &telemetry.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Name() string { return Name }

// Init binds the SecureAPI facade and, when a host was provided,
// installs the chaining handlers immediately. Double init is a logged
// no-op.
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
		return core.NewInterceptorError("globals.Init", Name, core.ErrMissingAPI)
	}
	i.api = api
	host := i.host
	i.mu.Unlock()

	i.logger.Info("Interceptor initialized", map[string]interface{}{
		"interceptor": Name,
		"id":          i.id,
		"api_version": api.APIVersion(),
		"has_host":    host != nil,
	})

	if host != nil {
		return i.install(host)
	}
	return nil
}

// SetHost binds a host after init. Rejected when one is already bound.
func (i *Interceptor) SetHost(host Host) error {
	i.mu.RLock()
	initialized := i.api != nil
	i.mu.RUnlock()

	if !initialized {
		i.logger.Warn("SetHost called before init", map[string]interface{}{
			"interceptor": Name,
		})
		return core.NewInterceptorError("globals.SetHost", Name, core.ErrNotInitialized)
	}
	if host == nil {
		i.collector.RecordBind(Name, "invalid")
		return core.NewInterceptorError("globals.SetHost", Name, core.ErrInvalidTarget)
	}

	if err := i.install(host); err != nil {
		return err
	}

	i.mu.Lock()
	i.host = host
	i.mu.Unlock()
	return nil
}

// install saves the host's pre-existing handlers (absent handlers are
// saved as nil and restored as nil) and replaces both slots with
// chaining instrumented handlers.
func (i *Interceptor) install(host Host) error {
	err := i.binding.Engage(func() (func(), func(), error) {
		prevUncaught := host.UncaughtHandler()
		prevRejection := host.RejectionHandler()

		host.SetUncaughtHandler(i.wrapUncaught(prevUncaught))
		host.SetRejectionHandler(i.wrapRejection(prevRejection))

		restore := func() {
			host.SetUncaughtHandler(prevUncaught)
			host.SetRejectionHandler(prevRejection)
		}
		return restore, nil, nil
	})
	if err != nil {
		i.collector.RecordBind(Name, "rejected")
		i.logger.Warn("Host bind rejected", map[string]interface{}{
			"interceptor": Name,
			"error":       err.Error(),
		})
		return err
	}

	i.collector.RecordBind(Name, "bound")
	i.logger.Info("Global error handlers installed", map[string]interface{}{
		"interceptor": Name,
		"id":          i.id,
	})
	return nil
}

// Destroy restores exactly the previously saved handlers and clears the
// facade. Idempotent.
func (i *Interceptor) Destroy() error {
	i.mu.Lock()
	if i.api == nil {
		i.mu.Unlock()
		i.logger.Warn("Destroy called on uninitialized interceptor", map[string]interface{}{
			"interceptor": Name,
		})
		return nil
	}
	wasBound := i.binding.Bound()
	i.api = nil
	i.host = nil
	i.mu.Unlock()

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
	return info
}

func (i *Interceptor) currentAPI() core.SecureAPI {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.api != nil {
		return i.api
	}
	return &core.NoOpAPI{}
}

// wrapUncaught forwards the event with the breadcrumb trail attached,
// then delegates to the previously installed handler. A panicking
// delegate is recovered and reported rather than propagated: the
// interceptor must never turn one crash into two.
func (i *Interceptor) wrapUncaught(prev UncaughtHandler) UncaughtHandler {
	return func(ev ErrorEvent) bool {
		api := i.currentAPI()

		payload := core.ErrorPayload{
			Kind: "uncaught.error",
			Error: core.ErrorDetail{
				Message: ev.Message,
				Stack:   ev.Stack,
			},
		}
		extra := api.GetContext(nil)
		if extra == nil {
			extra = map[string]interface{}{}
		}
		extra["source"] = ev.Source
		extra["line"] = ev.Line
		extra["column"] = ev.Column

		api.SendError(payload.Fields(), extra)
		i.collector.RecordErrorForwarded(Name, payload.Kind)

		if prev != nil {
			return i.delegate(func() bool { return prev(ev) }, "uncaught")
		}
		return false
	}
}

// wrapRejection is the unhandled-rejection counterpart of wrapUncaught.
func (i *Interceptor) wrapRejection(prev RejectionHandler) RejectionHandler {
	return func(ev RejectionEvent) bool {
		api := i.currentAPI()

		payload := core.ErrorPayload{
			Kind: "unhandled.rejection",
			Error: core.ErrorDetail{
				Message: fmt.Sprint(ev.Reason),
				Stack:   ev.Stack,
			},
		}
		api.SendError(payload.Fields(), api.GetContext(nil))
		i.collector.RecordErrorForwarded(Name, payload.Kind)

		if prev != nil {
			return i.delegate(func() bool { return prev(ev) }, "rejection")
		}
		return false
	}
}

// delegate invokes the saved prior handler, containing its panics.
func (i *Interceptor) delegate(fn func() bool, slot string) (suppressed bool) {
	defer func() {
		if r := recover(); r != nil {
			payload := core.ErrorPayload{
				Kind: "globals.delegate.panic",
				Error: core.ErrorDetail{
					Message: fmt.Sprint(r),
				},
			}
			i.currentAPI().SendError(payload.Fields(), map[string]interface{}{
				"slot": slot,
			})
			i.collector.RecordErrorForwarded(Name, payload.Kind)
			i.logger.Error("Previously installed global handler panicked", map[string]interface{}{
				"interceptor": Name,
				"slot":        slot,
			})
			suppressed = false
		}
	}()
	return fn()
}
