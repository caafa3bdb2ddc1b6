// Package sink defines the best-effort observability event sink consumed by
// the catalog and the orchestrator. Sink failures never abort the operation
// that emitted the event: callers log the error and continue.
package sink

import "context"

// Event names emitted by the core.
const (
	EventToolExecuted      = "tool.executed"
	EventToolFailed        = "tool.failed"
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventWorkflowPaused    = "workflow.paused"
)

// Sink records named events with arbitrary metadata.
type Sink interface {
	// Record persists the event. Implementations should be fast; callers
	// treat failures as non-fatal.
	Record(ctx context.Context, name string, metadata map[string]any) error
}

// Noop discards all events.
type Noop struct{}

// Compile-time check that Noop implements Sink.
var _ Sink = Noop{}

// Record implements Sink.
func (Noop) Record(context.Context, string, map[string]any) error { return nil }
