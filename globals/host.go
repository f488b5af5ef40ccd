package globals

import "sync"

// ErrorEvent describes one uncaught error surfaced by the host runtime.
type ErrorEvent struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// RejectionEvent describes one unhandled asynchronous rejection.
type RejectionEvent struct {
	Reason interface{} `json:"reason"`
	Stack  string      `json:"stack,omitempty"`
}

// UncaughtHandler handles an uncaught error. Returning true suppresses
// the host's default logging, matching the platform convention.
type UncaughtHandler func(ev ErrorEvent) bool

// RejectionHandler handles an unhandled rejection. Same return-value
// convention as UncaughtHandler.
type RejectionHandler func(ev RejectionEvent) bool

// Host is the runtime boundary the globals interceptor instruments: a
// pair of replaceable handler slots for uncaught errors and unhandled
// rejections. Browser bridges, embedders, and tests provide the
// implementation.
type Host interface {
	UncaughtHandler() UncaughtHandler
	SetUncaughtHandler(h UncaughtHandler)
	RejectionHandler() RejectionHandler
	SetRejectionHandler(h RejectionHandler)
}

// StaticHost is an in-memory Host implementation. Embedders route their
// runtime's error events through Raise/RaiseRejection; tests use it to
// verify handler chaining and restoration.
type StaticHost struct {
	mu        sync.RWMutex
	uncaught  UncaughtHandler
	rejection RejectionHandler
}

// NewStaticHost creates a host with no handlers installed
func NewStaticHost() *StaticHost {
	return &StaticHost{}
}

func (h *StaticHost) UncaughtHandler() UncaughtHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.uncaught
}

func (h *StaticHost) SetUncaughtHandler(fn UncaughtHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uncaught = fn
}

func (h *StaticHost) RejectionHandler() RejectionHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rejection
}

func (h *StaticHost) SetRejectionHandler(fn RejectionHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejection = fn
}

// Raise delivers an uncaught error to the current handler. Returns
// whether default logging should be suppressed; false when no handler
// is installed.
func (h *StaticHost) Raise(ev ErrorEvent) bool {
	if fn := h.UncaughtHandler(); fn != nil {
		return fn(ev)
	}
	return false
}

// RaiseRejection delivers an unhandled rejection to the current handler.
func (h *StaticHost) RaiseRejection(ev RejectionEvent) bool {
	if fn := h.RejectionHandler(); fn != nil {
		return fn(ev)
	}
	return false
}
