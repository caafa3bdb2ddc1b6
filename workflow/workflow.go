// Package workflow sequences calls across agents as a single logical,
// pausable unit of work.
//
// A workflow is an ordered list of steps, each invoking one agent on one
// conversation thread. Steps execute strictly in list order; execution
// resumes mid-list after a pause rather than restarting. Workflow state lives
// in the owning orchestrator instance: there is no cross-process sharing of a
// workflow, and a given workflow id has a single logical owner at a time.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	// StatusPending indicates the workflow has been created but not started.
	StatusPending Status = "pending"
	// StatusRunning indicates the workflow is actively executing steps.
	StatusRunning Status = "running"
	// StatusCompleted indicates every step finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a step failed and execution stopped. Terminal.
	StatusFailed Status = "failed"
	// StatusPaused indicates execution is suspended awaiting Resume.
	StatusPaused Status = "paused"
)

// StepStatus is the lifecycle state of a single step. It is monotonic:
// pending → running → completed or failed, never reverting.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepRunning indicates the step's agent invocation is in flight.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step finished with a result.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step's agent invocation failed.
	StepFailed StepStatus = "failed"
)

// ErrNotFound is returned when a workflow id is unknown to the orchestrator.
var ErrNotFound = errors.New("workflow not found")

type (
	// Step is a single agent invocation within a workflow.
	Step struct {
		// ID is the step identifier.
		ID string
		// AgentID names the agent to invoke.
		AgentID string
		// Input is the optional prompt passed to the agent.
		Input string
		// ThreadID is the conversation handle for the invocation, generated
		// at creation time when absent.
		ThreadID string
		// Status is the step lifecycle state.
		Status StepStatus
		// Result holds the agent's textual output once completed.
		Result string
		// Error holds the failure message once failed.
		Error string
		// StartedAt is set when the step begins executing.
		StartedAt *time.Time
		// CompletedAt is set when the step reaches a terminal state.
		CompletedAt *time.Time
	}

	// Workflow is an ordered sequence of steps executed as one unit.
	Workflow struct {
		// ID is the workflow identifier.
		ID string
		// Name labels the workflow.
		Name string
		// Description provides optional human-readable context.
		Description string
		// Steps execute strictly in order.
		Steps []Step
		// CurrentStepIndex is the next step to execute. It never regresses
		// during orchestrator-driven execution.
		CurrentStepIndex int
		// Status is the workflow lifecycle state.
		Status Status
		// CreatedAt records workflow creation time.
		CreatedAt time.Time
		// UpdatedAt records the last state change.
		UpdatedAt time.Time
	}

	// InvalidTransitionError reports an operation applied to a workflow in a
	// state that does not permit it (e.g. pausing a pending workflow or
	// executing a terminal one).
	InvalidTransitionError struct {
		// WorkflowID identifies the workflow.
		WorkflowID string
		// From is the workflow status at the time of the call.
		From Status
		// Op is the rejected operation.
		Op string
	}
)

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s workflow %q in status %q", e.Op, e.WorkflowID, e.From)
}

// Terminal reports whether the status permits no further execution.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// clone returns a deep copy of the workflow so callers never share mutable
// state with the orchestrator.
func (w *Workflow) clone() *Workflow {
	cp := *w
	cp.Steps = make([]Step, len(w.Steps))
	copy(cp.Steps, w.Steps)
	for i := range cp.Steps {
		if t := w.Steps[i].StartedAt; t != nil {
			at := *t
			cp.Steps[i].StartedAt = &at
		}
		if t := w.Steps[i].CompletedAt; t != nil {
			at := *t
			cp.Steps[i].CompletedAt = &at
		}
	}
	return &cp
}
