package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry is the host-side registration and injection mechanism.
// Interceptors are registered by name, injected with the SecureAPI
// facade, and queried for status snapshots. All operations are safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	interceptors map[string]Interceptor
	order        []string
	api          SecureAPI
	logger       Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry's logger
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAPI sets the SecureAPI facade handed to interceptors on injection
func WithAPI(api SecureAPI) RegistryOption {
	return func(r *Registry) { r.api = api }
}

// NewRegistry creates a new interceptor registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		interceptors: make(map[string]Interceptor),
		logger:       &NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an interceptor under its name. Registering the same
// name twice is rejected.
func (r *Registry) Register(i Interceptor) error {
	if i == nil {
		return fmt.Errorf("registry.Register: %w", ErrInvalidTarget)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := i.Name()
	if _, exists := r.interceptors[name]; exists {
		r.logger.Warn("Interceptor already registered", map[string]interface{}{
			"interceptor": name,
		})
		return fmt.Errorf("registry.Register %q: %w", name, ErrAlreadyRegistered)
	}

	r.interceptors[name] = i
	r.order = append(r.order, name)

	r.logger.Info("Registered interceptor", map[string]interface{}{
		"interceptor": name,
		"total":       len(r.interceptors),
	})
	return nil
}

// SetAPI replaces the facade used for subsequent injections
func (r *Registry) SetAPI(api SecureAPI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.api = api
}

// Inject initializes the named interceptor with the registry's facade
func (r *Registry) Inject(ctx context.Context, name string) error {
	r.mu.RLock()
	i, exists := r.interceptors[name]
	api := r.api
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("registry.Inject %q: %w", name, ErrInterceptorNotFound)
	}
	if api == nil {
		r.logger.Error("Cannot inject without an API facade", map[string]interface{}{
			"interceptor": name,
		})
		return fmt.Errorf("registry.Inject %q: %w", name, ErrMissingAPI)
	}

	if err := i.Init(ctx, api); err != nil {
		r.logger.Error("Interceptor initialization failed", map[string]interface{}{
			"interceptor": name,
			"error":       err.Error(),
		})
		return err
	}

	r.logger.Info("Injected interceptor", map[string]interface{}{
		"interceptor": name,
	})
	return nil
}

// InjectAll initializes every registered interceptor in registration
// order. Failures are logged and collected; one failing interceptor
// does not prevent the others from initializing.
func (r *Registry) InjectAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := r.Inject(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetInterceptorInfo returns a status snapshot for the named interceptor
func (r *Registry) GetInterceptorInfo(name string) (InterceptorInfo, error) {
	r.mu.RLock()
	i, exists := r.interceptors[name]
	r.mu.RUnlock()

	if !exists {
		return InterceptorInfo{}, fmt.Errorf("registry.GetInterceptorInfo %q: %w", name, ErrInterceptorNotFound)
	}
	return i.Info(), nil
}

// Get returns the named interceptor for variant-specific operations
func (r *Registry) Get(name string) (Interceptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, exists := r.interceptors[name]
	return i, exists
}

// List returns the registered names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Destroy tears down the named interceptor. Destroy is idempotent at
// the interceptor level, so repeated calls are safe.
func (r *Registry) Destroy(name string) error {
	r.mu.RLock()
	i, exists := r.interceptors[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("registry.Destroy %q: %w", name, ErrInterceptorNotFound)
	}
	return i.Destroy()
}

// DestroyAll tears down every registered interceptor in reverse
// registration order.
func (r *Registry) DestroyAll() {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	for idx := len(names) - 1; idx >= 0; idx-- {
		if err := r.Destroy(names[idx]); err != nil {
			r.logger.Warn("Interceptor teardown reported an error", map[string]interface{}{
				"interceptor": names[idx],
				"error":       err.Error(),
			})
		}
	}
}
