// Package ledger provides a durable, append-only log of tool invocations plus
// derived per-tool aggregate statistics.
//
// The ledger is the canonical record of every tool execution. Records are
// immutable once written; statistics are maintained incrementally alongside
// each append so reads never require a full scan. Store implementations are
// designed for concurrent multi-writer use: each LogExecution call is
// self-contained and atomic.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome recorded for a tool invocation.
type Status string

const (
	// StatusSuccess indicates the tool completed normally.
	StatusSuccess Status = "success"
	// StatusError indicates the tool's own logic failed.
	StatusError Status = "error"
	// StatusInProgress indicates the invocation has started but not yet
	// finished. In-progress records count toward total executions but toward
	// neither the success nor the failure bucket.
	StatusInProgress Status = "in_progress"
)

var (
	// ErrNotFound is returned when no execution record exists for an id.
	ErrNotFound = errors.New("execution record not found")

	// ErrUnavailable is returned when the backing store cannot be reached or
	// is not configured.
	ErrUnavailable = errors.New("execution store unavailable")
)

type (
	// Input describes a tool invocation to be appended to the ledger. The
	// store assigns the record id and timestamp.
	Input struct {
		// ToolID identifies the tool definition (may equal ToolName for
		// built-in tools).
		ToolID string `json:"tool_id"`
		// ToolName is the registered tool name; statistics aggregate by it.
		ToolName string `json:"tool_name"`
		// Parameters are the invocation parameters.
		Parameters map[string]any `json:"parameters,omitempty"`
		// Result is the tool output on success.
		Result any `json:"result,omitempty"`
		// ErrorMessage carries the failure message when Status is error.
		ErrorMessage string `json:"error_message,omitempty"`
		// Status is the invocation outcome.
		Status Status `json:"status"`
		// ExecutionTimeMs is the elapsed wall-clock time in milliseconds,
		// when measured.
		ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`
		// ThreadID correlates the invocation to a conversation thread.
		ThreadID string `json:"thread_id,omitempty"`
		// AgentID identifies the agent that issued the invocation.
		AgentID string `json:"agent_id,omitempty"`
		// Metadata carries caller-provided annotations.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// Record is a persisted, immutable ledger entry.
	Record struct {
		// ID is the store-assigned record identifier.
		ID string `json:"id"`
		// CreatedAt is the store-assigned append time.
		CreatedAt time.Time `json:"created_at"`

		Input
	}

	// Stats is the per-tool aggregate maintained alongside the ledger.
	Stats struct {
		// ToolName is the aggregated tool.
		ToolName string `json:"tool_name"`
		// TotalExecutions counts every logged invocation, including
		// in-progress ones.
		TotalExecutions int64 `json:"total_executions"`
		// SuccessfulExecutions counts invocations logged with status success.
		SuccessfulExecutions int64 `json:"successful_executions"`
		// FailedExecutions counts invocations logged with status error.
		FailedExecutions int64 `json:"failed_executions"`
		// AvgExecutionTimeMs is the arithmetic mean of all execution-time
		// samples recorded for the tool.
		AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
		// ExecutionTimeSampleCount counts invocations that carried an
		// execution time.
		ExecutionTimeSampleCount int64 `json:"execution_time_sample_count"`
		// LastExecutionAt is the append time of the most recent invocation.
		LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
	}

	// Store is the append-only execution ledger.
	//
	// Implementations index records by time, by tool, by thread, and by agent
	// so scoped most-recent-N queries stay cheap, and must apply all writes
	// for one record atomically so readers never observe a partially updated
	// index set.
	Store interface {
		// LogExecution appends a record and updates the tool's statistics.
		// Returns the assigned record id.
		LogExecution(ctx context.Context, in Input) (string, error)

		// GetExecution returns the record with the given id. Returns
		// ErrNotFound when the id is unknown.
		GetExecution(ctx context.Context, id string) (*Record, error)

		// ListExecutions returns up to limit records for the tool, most
		// recent first, skipping offset records. Malformed stored entries
		// are skipped with a warning rather than failing the query.
		ListExecutions(ctx context.Context, toolName string, limit, offset int) ([]*Record, error)

		// ListExecutionsByThread is ListExecutions scoped to a thread.
		ListExecutionsByThread(ctx context.Context, threadID string, limit, offset int) ([]*Record, error)

		// ListExecutionsByAgent is ListExecutions scoped to an agent.
		ListExecutionsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Record, error)

		// Stats returns the aggregate for the tool. A never-invoked tool
		// yields zeroed counters, never an error.
		Stats(ctx context.Context, toolName string) (Stats, error)
	}
)
