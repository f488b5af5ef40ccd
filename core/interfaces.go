package core

import "context"

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// SecureAPI is the capability-limited facade of the observability client.
// Interceptors report everything through it and never reach the client's
// internals directly. All methods are fire-and-forget from the
// interceptor's perspective: an interceptor must not depend on their
// return values to continue its own logic, and implementations must not
// panic.
type SecureAPI interface {
	// AddBreadcrumb appends one categorized event record. A nil data map
	// is allowed.
	AddBreadcrumb(category, message string, data map[string]interface{})

	// SendError forwards an error payload with optional extra context.
	SendError(payload map[string]interface{}, extra map[string]interface{})

	// SendBreadcrumbs forwards a pre-built batch of breadcrumbs.
	SendBreadcrumbs(batch []Breadcrumb)

	// GetContext returns the client's current context snapshot, including
	// the breadcrumb trail collected so far.
	GetContext(config map[string]interface{}) map[string]interface{}

	// GetTimestamp returns the client's clock as an ISO-8601 string.
	GetTimestamp() string

	// APIVersion identifies the facade contract version.
	APIVersion() string

	// AvailableMethods lists the capabilities this facade exposes.
	AvailableMethods() []string
}

// Interceptor is the base interface every variant presents to the
// registry. Init and Destroy degrade to logged no-ops on misuse (double
// init, destroy before init, double destroy) and never panic; only the
// instrumented call itself is allowed to re-raise.
type Interceptor interface {
	Name() string
	Init(ctx context.Context, api SecureAPI) error
	Destroy() error
	Info() InterceptorInfo
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpAPI is a SecureAPI that discards everything. Interceptors fall
// back to it so reporting calls stay safe before Init and after Destroy.
type NoOpAPI struct{}

func (n *NoOpAPI) AddBreadcrumb(category, message string, data map[string]interface{}) {}
func (n *NoOpAPI) SendError(payload map[string]interface{}, extra map[string]interface{}) {
}
func (n *NoOpAPI) SendBreadcrumbs(batch []Breadcrumb) {}
func (n *NoOpAPI) GetContext(config map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{}
}
func (n *NoOpAPI) GetTimestamp() string       { return "" }
func (n *NoOpAPI) APIVersion() string         { return "" }
func (n *NoOpAPI) AvailableMethods() []string { return nil }
