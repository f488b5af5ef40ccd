package core

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Breadcrumb is one categorized event record. The interceptors produce
// breadcrumbs and hand them to the SecureAPI; they never inspect the
// contents again after creation.
type Breadcrumb struct {
	Category string                 `json:"category"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ErrorDetail carries the message and stack of a captured error.
type ErrorDetail struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ErrorPayload is the structured record forwarded to the error sink.
// Action holds the dispatched action or committed mutation that
// triggered the failure, when one is known.
type ErrorPayload struct {
	Kind   string                 `json:"kind"`
	Error  ErrorDetail            `json:"error"`
	Action map[string]interface{} `json:"action,omitempty"`
}

// Fields renders the payload as the map shape the SecureAPI consumes.
func (p ErrorPayload) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"kind": p.Kind,
		"error": map[string]interface{}{
			"message": p.Error.Message,
			"stack":   p.Error.Stack,
		},
	}
	if p.Action != nil {
		fields["action"] = p.Action
	}
	return fields
}

// CloneData deep-copies a breadcrumb data payload so later mutation by
// the host application cannot corrupt an already-recorded trail. Values
// that do not survive a JSON round trip (channels, funcs) degrade to a
// shallow copy.
func CloneData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err == nil {
		clone := make(map[string]interface{}, len(data))
		if err := json.Unmarshal(raw, &clone); err == nil {
			return clone
		}
	}

	// Fallback: shallow copy still isolates top-level replacement.
	clone := make(map[string]interface{}, len(data))
	for k, v := range data {
		clone[k] = v
	}
	return clone
}
