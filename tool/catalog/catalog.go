// Package catalog provides the process-wide tool catalog: a lazily and
// idempotently initialized registry mapping tool names to executable
// descriptors.
//
// The catalog merges tools from multiple origins (built-in, dynamically
// defined, integration-contributed) exactly once, no matter how many callers
// race to trigger initialization. A failed initialization returns the catalog
// to its uninitialized state so a later call can retry; lookups never observe
// a partially populated catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/appforge/toolflow/ledger"
	"github.com/appforge/toolflow/sink"
	"github.com/appforge/toolflow/telemetry"
	"github.com/appforge/toolflow/tool"
)

// initState tracks the catalog initialization gate.
type initState int

const (
	stateNotStarted initState = iota
	stateInProgress
	stateReady
)

type (
	// Options configures a Catalog.
	Options struct {
		// Origins contribute tools during initialization, in order. When two
		// origins contribute the same name, the later origin wins.
		Origins []Origin
		// Ledger receives one execution record per ExecuteTool call. Optional;
		// logging is best-effort relative to the execution itself.
		Ledger ledger.Store
		// Logger receives catalog logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// Metrics receives execution counters and timers. Defaults to no-op.
		Metrics telemetry.Metrics
		// Tracer creates spans around tool executions. Defaults to no-op.
		Tracer telemetry.Tracer
		// Sink receives tool lifecycle events. Failures are logged and
		// swallowed. Defaults to a no-op sink.
		Sink sink.Sink
		// ExecutionsPerSecond caps the rate of ExecuteTool calls across the
		// catalog. Zero means unlimited.
		ExecutionsPerSecond float64
		// ExecutionBurst is the rate limiter burst size. Defaults to 1 when a
		// rate is set.
		ExecutionBurst int
	}

	// Catalog is the tool registry. It is safe for concurrent use.
	Catalog struct {
		origins []Origin
		ledger  ledger.Store
		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
		sink    sink.Sink
		limiter *rate.Limiter

		mu      sync.Mutex
		state   initState
		attempt *initAttempt
		tools   map[string]tool.Descriptor
		// manual registrations survive re-initialization after a failure.
		manual map[string]tool.Descriptor
	}

	// initAttempt is the shared in-flight initialization all concurrent
	// first-callers await.
	initAttempt struct {
		done chan struct{}
		err  error
	}

	// InitializationError reports a failed catalog assembly.
	InitializationError struct {
		// Origin names the origin that failed.
		Origin string
		// Err is the underlying failure.
		Err error
	}
)

// Error implements the error interface.
func (e *InitializationError) Error() string {
	return fmt.Sprintf("catalog initialization failed at origin %q: %v", e.Origin, e.Err)
}

// Unwrap returns the underlying failure.
func (e *InitializationError) Unwrap() error { return e.Err }

// New creates a Catalog. Initialization is lazy: the first lookup or an
// explicit Initialize call triggers origin assembly.
func New(opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	snk := opts.Sink
	if snk == nil {
		snk = sink.Noop{}
	}
	var limiter *rate.Limiter
	if opts.ExecutionsPerSecond > 0 {
		burst := opts.ExecutionBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ExecutionsPerSecond), burst)
	}
	return &Catalog{
		origins: opts.Origins,
		ledger:  opts.Ledger,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		sink:    snk,
		limiter: limiter,
		manual:  make(map[string]tool.Descriptor),
	}
}

// Initialize assembles the catalog from its origins. It is idempotent: the
// first caller performs the work, concurrent callers await the same in-flight
// attempt, and later callers return immediately once the catalog is ready.
// On failure the catalog returns to its uninitialized state so a subsequent
// call can retry.
func (c *Catalog) Initialize(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case stateReady:
			c.mu.Unlock()
			return nil

		case stateInProgress:
			attempt := c.attempt
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-attempt.done:
			}
			if attempt.err != nil {
				return attempt.err
			}
			// Re-check: the attempt succeeded, the next loop returns nil.

		case stateNotStarted:
			attempt := &initAttempt{done: make(chan struct{})}
			c.state = stateInProgress
			c.attempt = attempt
			c.mu.Unlock()

			tools, err := c.assemble(ctx)

			c.mu.Lock()
			if err != nil {
				c.state = stateNotStarted
				c.logger.Error(ctx, "catalog initialization failed", "err", err.Error())
			} else {
				for name, d := range c.manual {
					tools[name] = d
				}
				c.tools = tools
				c.state = stateReady
				c.logger.Info(ctx, "catalog initialized", "tools", len(tools))
			}
			attempt.err = err
			c.attempt = nil
			close(attempt.done)
			c.mu.Unlock()
			return err
		}
	}
}

// assemble collects descriptors from every origin into a fresh map. Any
// origin error aborts the whole assembly so the catalog is never partially
// populated.
func (c *Catalog) assemble(ctx context.Context) (map[string]tool.Descriptor, error) {
	tools := make(map[string]tool.Descriptor)
	for _, origin := range c.origins {
		descs, err := origin.Tools(ctx)
		if err != nil {
			return nil, &InitializationError{Origin: origin.Name(), Err: err}
		}
		for _, d := range descs {
			if d.Name == "" || d.Executor == nil {
				c.logger.Warn(ctx, "skipping tool without name or executor", "origin", origin.Name())
				continue
			}
			tools[d.Name] = d
		}
		c.logger.Debug(ctx, "origin contributed tools", "origin", origin.Name(), "count", len(descs))
	}
	return tools, nil
}

// GetTool returns the descriptor registered under name. The boolean reports
// whether the name is registered; an unregistered name is not an error.
func (c *Catalog) GetTool(ctx context.Context, name string) (tool.Descriptor, bool, error) {
	if err := c.Initialize(ctx); err != nil {
		return tool.Descriptor{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.tools[name]
	return d, ok, nil
}

// GetAllTools returns a snapshot of every registered tool.
func (c *Catalog) GetAllTools(ctx context.Context) (map[string]tool.Descriptor, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]tool.Descriptor, len(c.tools))
	for name, d := range c.tools {
		out[name] = d
	}
	return out, nil
}

// GetToolsByCategory returns a snapshot of tools whose category matches,
// case-insensitively.
func (c *Catalog) GetToolsByCategory(ctx context.Context, category string) (map[string]tool.Descriptor, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]tool.Descriptor)
	for name, d := range c.tools {
		if strings.EqualFold(d.Category, category) {
			out[name] = d
		}
	}
	return out, nil
}

// Register adds a tool, replacing any existing entry with the same name
// unconditionally. Registrations survive initialization retries.
func (c *Catalog) Register(d tool.Descriptor) error {
	if d.Name == "" {
		return errors.New("tool name is required")
	}
	if d.Executor == nil {
		return errors.New("tool executor is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual[d.Name] = d
	if c.state == stateReady {
		c.tools[d.Name] = d
	}
	return nil
}

// ExecuteTool resolves the named tool, validates the parameters, and invokes
// the executor. One execution record is appended to the ledger per call,
// success or failure; ledger unavailability never fails the execution itself.
// A missing tool returns tool.ErrNotFound; an executor failure returns a
// tool.ExecutionError.
func (c *Catalog) ExecuteTool(ctx context.Context, name string, params map[string]any) (any, error) {
	d, ok, err := c.GetTool(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", tool.ErrNotFound, name)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("execution rate limit: %w", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "catalog.execute_tool")
	defer span.End()
	span.AddEvent("tool.resolved", "tool", name)

	start := time.Now()
	var (
		result  any
		execErr error
	)
	if err := d.ValidateParams(params); err != nil {
		execErr = err
	} else {
		result, execErr = d.Executor.Execute(ctx, params)
	}
	elapsed := time.Since(start)
	elapsedMs := elapsed.Milliseconds()

	status := ledger.StatusSuccess
	outcome := "success"
	if execErr != nil {
		status = ledger.StatusError
		outcome = "error"
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "tool execution failed")
	}
	c.metrics.IncCounter("tool_executions", 1, "tool", name, "status", outcome)
	c.metrics.RecordTimer("tool_execution_duration", elapsed, "tool", name)

	c.record(ctx, d, params, result, execErr, status, elapsedMs)

	if execErr != nil {
		var verr *tool.ValidationError
		if errors.As(execErr, &verr) {
			return nil, execErr
		}
		return nil, &tool.ExecutionError{Tool: name, Err: execErr}
	}
	return result, nil
}

// record appends the execution to the ledger and emits a sink event, both
// best-effort.
func (c *Catalog) record(ctx context.Context, d tool.Descriptor, params map[string]any, result any, execErr error, status ledger.Status, elapsedMs int64) {
	toolID := d.ID
	if toolID == "" {
		toolID = d.Name
	}

	if c.ledger != nil {
		in := ledger.Input{
			ToolID:          toolID,
			ToolName:        d.Name,
			Parameters:      params,
			Status:          status,
			ExecutionTimeMs: &elapsedMs,
		}
		if execErr != nil {
			in.ErrorMessage = execErr.Error()
		} else {
			in.Result = result
		}
		if _, err := c.ledger.LogExecution(ctx, in); err != nil {
			c.logger.Warn(ctx, "failed to log tool execution", "tool", d.Name, "err", err.Error())
		}
	}

	event := sink.EventToolExecuted
	meta := map[string]any{"tool": d.Name, "tool_id": toolID, "elapsed_ms": elapsedMs}
	if execErr != nil {
		event = sink.EventToolFailed
		meta["error"] = execErr.Error()
	}
	if err := c.sink.Record(ctx, event, meta); err != nil {
		c.logger.Warn(ctx, "failed to record tool event", "tool", d.Name, "err", err.Error())
	}
}
