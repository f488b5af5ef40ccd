// Package telemetry provides metric emission for interceptor events.
// Interceptors record through the Collector interface; production hosts
// wire the OpenTelemetry implementation, everything else gets the no-op.
package telemetry

// Collector receives interceptor lifecycle and traffic events.
// Implementations must be safe for concurrent use and must never panic:
// metrics are ambient, a broken backend cannot be allowed to break the
// instrumented call path.
type Collector interface {
	// RecordBreadcrumb counts one emitted breadcrumb
	RecordBreadcrumb(variant, category string)

	// RecordErrorForwarded counts one payload sent to the error sink
	RecordErrorForwarded(variant, kind string)

	// RecordBind counts a bind attempt with its outcome
	// ("bound", "rejected", "invalid")
	RecordBind(variant, outcome string)

	// RecordUnwind counts a completed teardown
	RecordUnwind(variant string)

	// RecordDiscoveryPoll counts one discovery poll with its outcome
	// ("found", "miss", "exhausted")
	RecordDiscoveryPoll(variant, outcome string)

	// RecordWrapDuration records the instrumented call duration
	RecordWrapDuration(variant string, ms float64)
}

// NoOpCollector discards all metrics
type NoOpCollector struct{}

func (n *NoOpCollector) RecordBreadcrumb(variant, category string)     {}
func (n *NoOpCollector) RecordErrorForwarded(variant, kind string)     {}
func (n *NoOpCollector) RecordBind(variant, outcome string)            {}
func (n *NoOpCollector) RecordUnwind(variant string)                   {}
func (n *NoOpCollector) RecordDiscoveryPoll(variant, outcome string)   {}
func (n *NoOpCollector) RecordWrapDuration(variant string, ms float64) {}
