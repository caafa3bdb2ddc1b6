package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/appforge/toolflow/agent"
	"github.com/appforge/toolflow/sink"
	"github.com/appforge/toolflow/telemetry"
	"github.com/appforge/toolflow/thread"
)

type (
	// Options configures an Orchestrator.
	Options struct {
		// Resolver maps agent ids to executors. Required.
		Resolver agent.Resolver
		// Threads is the conversation message store used for agent-to-agent
		// history sharing. Required only when AgentToAgent is used.
		Threads thread.Store
		// Logger receives orchestrator logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// Tracer creates spans around workflow runs. Defaults to no-op.
		Tracer telemetry.Tracer
		// Sink receives workflow lifecycle events. Failures are logged and
		// swallowed. Defaults to a no-op sink.
		Sink sink.Sink
	}

	// Orchestrator owns workflow and shared-context state and drives step
	// execution. State is process-local; construct independent orchestrators
	// for independent lifetimes (e.g. one per test).
	Orchestrator struct {
		resolver agent.Resolver
		threads  thread.Store
		logger   telemetry.Logger
		tracer   telemetry.Tracer
		sink     sink.Sink

		mu        sync.Mutex
		workflows map[string]*Workflow
		contexts  map[string]map[string]any
	}

	// StepInput describes a step at workflow creation time.
	StepInput struct {
		// AgentID names the agent to invoke. Required.
		AgentID string
		// Input is the optional prompt for the agent.
		Input string
		// ThreadID is the conversation handle; generated when empty.
		ThreadID string
	}

	// AgentToAgentOptions configures a direct agent-to-agent relay.
	AgentToAgentOptions struct {
		// SourceThreadID is the thread whose history may be shared.
		SourceThreadID string
		// ShareFullHistory copies every message from the source thread into
		// the fresh target thread, preserving role, content, and order. The
		// source thread is never mutated.
		ShareFullHistory bool
		// SystemMessage, when set, is injected into the target thread before
		// the relayed input.
		SystemMessage string
	}
)

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, errors.New("agent resolver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	snk := opts.Sink
	if snk == nil {
		snk = sink.Noop{}
	}
	return &Orchestrator{
		resolver:  opts.Resolver,
		threads:   opts.Threads,
		logger:    logger,
		tracer:    tracer,
		sink:      snk,
		workflows: make(map[string]*Workflow),
		contexts:  make(map[string]map[string]any),
	}, nil
}

// CreateWorkflow builds a pending workflow with the given initial steps,
// generating a fresh workflow id and a thread id for each step lacking one.
func (o *Orchestrator) CreateWorkflow(name, description string, steps []StepInput) *Workflow {
	now := time.Now().UTC()
	w := &Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, in := range steps {
		w.Steps = append(w.Steps, newStep(in))
	}
	o.mu.Lock()
	o.workflows[w.ID] = w
	snap := w.clone()
	o.mu.Unlock()
	return snap
}

// AddWorkflowStep appends a pending step to the workflow.
func (o *Orchestrator) AddWorkflowStep(workflowID, agentID, input, threadID string) (*Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	w.Steps = append(w.Steps, newStep(StepInput{AgentID: agentID, Input: input, ThreadID: threadID}))
	w.UpdatedAt = time.Now().UTC()
	return w.clone(), nil
}

// GetWorkflow returns a snapshot of the workflow.
func (o *Orchestrator) GetWorkflow(workflowID string) (*Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	return w.clone(), nil
}

// ListWorkflows returns a snapshot of every workflow owned by the
// orchestrator.
func (o *Orchestrator) ListWorkflows() []*Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Workflow, 0, len(o.workflows))
	for _, w := range o.workflows {
		out = append(out, w.clone())
	}
	return out
}

// ExecuteWorkflow runs the workflow's steps in order starting at
// CurrentStepIndex. A step failure marks the step and the workflow failed and
// stops iteration; already-completed steps keep their results. Executing a
// terminal or paused workflow is rejected with an InvalidTransitionError
// (paused workflows resume via ResumeWorkflow).
//
// The workflow failure itself is communicated through the returned snapshot's
// Status and the failing step's Error, not through the error return.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) (*Workflow, error) {
	o.mu.Lock()
	w, ok := o.workflows[workflowID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	if w.Status != StatusPending {
		from := w.Status
		o.mu.Unlock()
		return nil, &InvalidTransitionError{WorkflowID: workflowID, From: from, Op: "execute"}
	}
	w.Status = StatusRunning
	w.UpdatedAt = time.Now().UTC()
	name := w.Name
	o.mu.Unlock()

	o.emit(ctx, sink.EventWorkflowStarted, map[string]any{"workflow_id": workflowID, "name": name})
	return o.run(ctx, workflowID)
}

// PauseWorkflow suspends a running workflow. The current step index is left
// unchanged so ResumeWorkflow continues from the exact same position.
func (o *Orchestrator) PauseWorkflow(workflowID string) (*Workflow, error) {
	o.mu.Lock()
	w, ok := o.workflows[workflowID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	if w.Status != StatusRunning {
		from := w.Status
		o.mu.Unlock()
		return nil, &InvalidTransitionError{WorkflowID: workflowID, From: from, Op: "pause"}
	}
	w.Status = StatusPaused
	w.UpdatedAt = time.Now().UTC()
	snap := w.clone()
	o.mu.Unlock()

	o.emit(context.Background(), sink.EventWorkflowPaused, map[string]any{"workflow_id": workflowID, "step_index": snap.CurrentStepIndex})
	return snap, nil
}

// ResumeWorkflow continues a paused workflow from its current step index.
// Steps before the index are not re-executed.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, workflowID string) (*Workflow, error) {
	o.mu.Lock()
	w, ok := o.workflows[workflowID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	if w.Status != StatusPaused {
		from := w.Status
		o.mu.Unlock()
		return nil, &InvalidTransitionError{WorkflowID: workflowID, From: from, Op: "resume"}
	}
	w.Status = StatusRunning
	w.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()

	o.logger.Info(ctx, "resuming workflow", "workflow_id", workflowID)
	return o.run(ctx, workflowID)
}

// run drives the step loop for a workflow already in running state.
func (o *Orchestrator) run(ctx context.Context, workflowID string) (*Workflow, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.run")
	defer span.End()

	for {
		o.mu.Lock()
		w := o.workflows[workflowID]
		if w.Status == StatusPaused {
			snap := w.clone()
			o.mu.Unlock()
			o.logger.Info(ctx, "workflow paused", "workflow_id", workflowID, "step_index", snap.CurrentStepIndex)
			return snap, nil
		}
		if w.CurrentStepIndex >= len(w.Steps) {
			w.Status = StatusCompleted
			w.UpdatedAt = time.Now().UTC()
			snap := w.clone()
			o.mu.Unlock()
			o.emit(ctx, sink.EventWorkflowCompleted, map[string]any{"workflow_id": workflowID})
			return snap, nil
		}
		idx := w.CurrentStepIndex
		step := &w.Steps[idx]
		started := time.Now().UTC()
		step.Status = StepRunning
		step.StartedAt = &started
		w.UpdatedAt = started
		agentID, input, threadID := step.AgentID, step.Input, step.ThreadID
		o.mu.Unlock()

		o.logger.Debug(ctx, "executing workflow step", "workflow_id", workflowID, "step_index", idx, "agent_id", agentID)
		out, err := o.invoke(ctx, agentID, input, threadID)

		o.mu.Lock()
		w = o.workflows[workflowID]
		step = &w.Steps[idx]
		done := time.Now().UTC()
		step.CompletedAt = &done
		w.UpdatedAt = done
		if err != nil {
			step.Status = StepFailed
			step.Error = err.Error()
			w.Status = StatusFailed
			snap := w.clone()
			o.mu.Unlock()
			span.RecordError(err)
			span.SetStatus(codes.Error, "workflow step failed")
			o.logger.Error(ctx, "workflow step failed", "workflow_id", workflowID, "step_index", idx, "err", err.Error())
			o.emit(ctx, sink.EventWorkflowFailed, map[string]any{"workflow_id": workflowID, "step_index": idx, "error": err.Error()})
			return snap, nil
		}
		step.Status = StepCompleted
		step.Result = out.Text
		w.CurrentStepIndex++
		o.mu.Unlock()
	}
}

// invoke resolves and runs the agent for one step.
func (o *Orchestrator) invoke(ctx context.Context, agentID, input, threadID string) (agent.Output, error) {
	a, err := o.resolver.Resolve(ctx, agentID)
	if err != nil {
		return agent.Output{}, fmt.Errorf("resolve agent %q: %w", agentID, err)
	}
	out, err := a.Run(ctx, input, threadID)
	if err != nil {
		return agent.Output{}, fmt.Errorf("agent %q: %w", agentID, err)
	}
	return out, nil
}

// AgentToAgent relays input from one agent to another on a fresh thread,
// optionally copying the source thread's history first. It never touches
// workflow state; it is a peer capability for ad hoc agent pairing.
func (o *Orchestrator) AgentToAgent(ctx context.Context, sourceAgentID, targetAgentID, input string, opts AgentToAgentOptions) (string, error) {
	if o.threads == nil {
		return "", errors.New("thread store is required for agent-to-agent communication")
	}
	source, err := o.resolver.Resolve(ctx, sourceAgentID)
	if err != nil {
		return "", fmt.Errorf("resolve source agent %q: %w", sourceAgentID, err)
	}
	target, err := o.resolver.Resolve(ctx, targetAgentID)
	if err != nil {
		return "", fmt.Errorf("resolve target agent %q: %w", targetAgentID, err)
	}

	threadID := uuid.New().String()
	if opts.ShareFullHistory && opts.SourceThreadID != "" {
		msgs, err := o.threads.Messages(ctx, opts.SourceThreadID)
		if err != nil {
			return "", fmt.Errorf("load source thread %q: %w", opts.SourceThreadID, err)
		}
		for _, m := range msgs {
			if err := o.threads.SaveMessage(ctx, threadID, m); err != nil {
				return "", fmt.Errorf("copy message to thread %q: %w", threadID, err)
			}
		}
	}
	if opts.SystemMessage != "" {
		if err := o.threads.SaveMessage(ctx, threadID, thread.Message{Role: thread.RoleSystem, Content: opts.SystemMessage}); err != nil {
			return "", fmt.Errorf("save system message: %w", err)
		}
	}
	tagged := fmt.Sprintf("[from %s]: %s", source.Name(), input)
	if err := o.threads.SaveMessage(ctx, threadID, thread.Message{Role: thread.RoleUser, Content: tagged}); err != nil {
		return "", fmt.Errorf("save relay message: %w", err)
	}

	out, err := target.Run(ctx, tagged, threadID)
	if err != nil {
		return "", fmt.Errorf("agent %q: %w", targetAgentID, err)
	}
	return out.Text, nil
}

// SetSharedContext stores a value in the workflow's shared context, creating
// the context on first write.
func (o *Orchestrator) SetSharedContext(workflowID, key string, value any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workflows[workflowID]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	sc := o.contexts[workflowID]
	if sc == nil {
		sc = make(map[string]any)
		o.contexts[workflowID] = sc
	}
	sc[key] = value
	return nil
}

// GetSharedContext returns the value stored under key for the workflow. The
// boolean reports presence; an absent key is not an error.
func (o *Orchestrator) GetSharedContext(workflowID, key string) (any, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workflows[workflowID]; !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	v, ok := o.contexts[workflowID][key]
	return v, ok, nil
}

// SharedContext returns a copy of the workflow's whole shared context. A
// workflow with no writes yields an empty map.
func (o *Orchestrator) SharedContext(workflowID string) (map[string]any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workflows[workflowID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	sc := o.contexts[workflowID]
	out := make(map[string]any, len(sc))
	for k, v := range sc {
		out[k] = v
	}
	return out, nil
}

// emit records a lifecycle event, best-effort.
func (o *Orchestrator) emit(ctx context.Context, event string, meta map[string]any) {
	if err := o.sink.Record(ctx, event, meta); err != nil {
		o.logger.Warn(ctx, "failed to record workflow event", "event", event, "err", err.Error())
	}
}

func newStep(in StepInput) Step {
	threadID := in.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}
	return Step{
		ID:       uuid.New().String(),
		AgentID:  in.AgentID,
		Input:    in.Input,
		ThreadID: threadID,
		Status:   StepPending,
	}
}
