package core

import (
	"sync"
	"time"
)

// SentError is one recorded SendError call.
type SentError struct {
	Payload map[string]interface{}
	Extra   map[string]interface{}
}

// RecordingAPI provides an in-memory SecureAPI implementation that
// records everything it receives. It backs the test suites and is
// exported so host applications can verify their wiring without a real
// observability client.
type RecordingAPI struct {
	mu          sync.RWMutex
	breadcrumbs []Breadcrumb
	errors      []SentError
	batches     [][]Breadcrumb
}

// NewRecordingAPI creates a new recording facade
func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{}
}

// AddBreadcrumb records a breadcrumb (implements SecureAPI)
func (r *RecordingAPI) AddBreadcrumb(category, message string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = append(r.breadcrumbs, Breadcrumb{
		Category: category,
		Message:  message,
		Data:     data,
	})
}

// SendError records an error payload (implements SecureAPI)
func (r *RecordingAPI) SendError(payload map[string]interface{}, extra map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, SentError{Payload: payload, Extra: extra})
}

// SendBreadcrumbs records a breadcrumb batch (implements SecureAPI)
func (r *RecordingAPI) SendBreadcrumbs(batch []Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]Breadcrumb, len(batch))
	copy(copied, batch)
	r.batches = append(r.batches, copied)
}

// GetContext returns the current breadcrumb trail (implements SecureAPI)
func (r *RecordingAPI) GetContext(config map[string]interface{}) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trail := make([]Breadcrumb, len(r.breadcrumbs))
	copy(trail, r.breadcrumbs)
	return map[string]interface{}{
		"breadcrumbs": trail,
	}
}

// GetTimestamp returns the current time as ISO-8601 (implements SecureAPI)
func (r *RecordingAPI) GetTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// APIVersion returns the facade contract version (implements SecureAPI)
func (r *RecordingAPI) APIVersion() string {
	return "v1"
}

// AvailableMethods lists the exposed capabilities (implements SecureAPI)
func (r *RecordingAPI) AvailableMethods() []string {
	return []string{"addBreadcrumb", "sendError", "sendBreadcrumbs", "getContext", "getTimestamp"}
}

// Breadcrumbs returns a copy of everything recorded via AddBreadcrumb
func (r *RecordingAPI) Breadcrumbs() []Breadcrumb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Breadcrumb, len(r.breadcrumbs))
	copy(out, r.breadcrumbs)
	return out
}

// Errors returns a copy of everything recorded via SendError
func (r *RecordingAPI) Errors() []SentError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SentError, len(r.errors))
	copy(out, r.errors)
	return out
}

// Reset clears all recorded data
func (r *RecordingAPI) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = nil
	r.errors = nil
	r.batches = nil
}
