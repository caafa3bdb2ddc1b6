// Package agent defines the executor abstraction consumed by the workflow
// orchestrator. Agents are opaque to the orchestration core: they accept an
// input and a thread handle and return textual output. Concrete
// implementations (model-backed assistants, remote services) live outside
// this module and are adapted to the Agent interface at wiring time.
package agent

import (
	"context"
	"errors"
)

// ErrNotFound is returned by resolvers when no agent is registered under the
// requested identifier.
var ErrNotFound = errors.New("agent not found")

type (
	// Output is the result of a single agent invocation.
	Output struct {
		// Text is the agent's textual output for the invocation.
		Text string
	}

	// Agent executes a single invocation against a conversation thread.
	Agent interface {
		// Name returns the human-readable agent name used when tagging
		// cross-agent messages.
		Name() string
		// Run executes the agent with the given input on the given thread.
		// Input may be empty when the agent derives its work from thread
		// history alone.
		Run(ctx context.Context, input string, threadID string) (Output, error)
	}

	// Resolver maps agent identifiers to Agent implementations. The
	// orchestrator resolves agents per step; resolution failure is reported
	// as a step failure, not a panic.
	Resolver interface {
		// Resolve returns the agent registered under id. Returns ErrNotFound
		// when the id is unknown.
		Resolve(ctx context.Context, id string) (Agent, error)
	}

	// StaticResolver is a map-backed Resolver for wiring and tests.
	StaticResolver map[string]Agent
)

// Compile-time check that StaticResolver implements Resolver.
var _ Resolver = (StaticResolver)(nil)

// Resolve implements Resolver.
func (r StaticResolver) Resolve(_ context.Context, id string) (Agent, error) {
	a, ok := r[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Func adapts a function to the Agent interface.
type Func struct {
	// AgentName is returned by Name.
	AgentName string
	// RunFunc is invoked by Run.
	RunFunc func(ctx context.Context, input string, threadID string) (Output, error)
}

// Name implements Agent.
func (f Func) Name() string { return f.AgentName }

// Run implements Agent.
func (f Func) Run(ctx context.Context, input string, threadID string) (Output, error) {
	return f.RunFunc(ctx, input, threadID)
}
