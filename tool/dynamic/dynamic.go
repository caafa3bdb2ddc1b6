// Package dynamic loads tools whose executable body comes from persisted
// configuration rather than compiled code.
//
// A dynamic tool definition couples a declarative parameter schema with an
// expression evaluated by a restricted engine. The engine exposes only the
// invocation parameters and a small allowlist of pure helper functions; it
// has no I/O, filesystem, or process capabilities, so persisted definitions
// cannot escalate beyond computing a value from their inputs.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/appforge/toolflow/telemetry"
	"github.com/appforge/toolflow/tool"
)

// ErrNotFound is returned when a definition id is not in the store.
var ErrNotFound = errors.New("tool definition not found")

type (
	// Definition is a persisted dynamic tool definition.
	Definition struct {
		// ID is the store-assigned definition identifier.
		ID string
		// Name is the tool name registered in the catalog.
		Name string
		// Description provides human-readable context.
		Description string
		// Category tags the tool; defaults to "custom" when empty.
		Category string
		// ParameterSchema is the declarative JSON schema for parameters.
		// Empty means the tool accepts arbitrary parameters.
		ParameterSchema []byte
		// Expression is the tool body evaluated by the restricted engine.
		// The invocation parameters are bound to the "params" identifier.
		Expression string
		// CreatedAt records when the definition was first saved.
		CreatedAt time.Time
		// UpdatedAt records the last modification time.
		UpdatedAt time.Time
	}

	// Store persists dynamic tool definitions. Implementations must be safe
	// for concurrent use and return ErrNotFound for missing definitions.
	Store interface {
		// SaveDefinition stores or updates a definition. The store assigns
		// the ID when empty.
		SaveDefinition(ctx context.Context, def *Definition) error
		// GetDefinition retrieves a definition by id.
		GetDefinition(ctx context.Context, id string) (*Definition, error)
		// DeleteDefinition removes a definition by id.
		DeleteDefinition(ctx context.Context, id string) error
		// ListDefinitions returns all definitions.
		ListDefinitions(ctx context.Context) ([]*Definition, error)
	}

	// Origin adapts a definition store to the catalog origin contract.
	// A malformed definition is skipped with a warning; it does not abort
	// loading of the remaining definitions.
	Origin struct {
		store  Store
		logger telemetry.Logger
	}
)

// NewOrigin creates a catalog origin backed by the definition store.
func NewOrigin(store Store, logger telemetry.Logger) (*Origin, error) {
	if store == nil {
		return nil, errors.New("definition store is required")
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Origin{store: store, logger: logger}, nil
}

// Name identifies the origin in logs.
func (o *Origin) Name() string { return "dynamic" }

// Tools loads every persisted definition and compiles it into a descriptor.
// A store failure aborts initialization; a single malformed definition does
// not.
func (o *Origin) Tools(ctx context.Context) ([]tool.Descriptor, error) {
	defs, err := o.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tool definitions: %w", err)
	}
	out := make([]tool.Descriptor, 0, len(defs))
	for _, def := range defs {
		d, err := Compile(def)
		if err != nil {
			o.logger.Warn(ctx, "skipping malformed tool definition", "id", def.ID, "name", def.Name, "err", err.Error())
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Compile turns a definition into an executable descriptor: the parameter
// schema becomes a validator handle and the expression becomes an executor
// bound to the restricted environment.
func Compile(def *Definition) (tool.Descriptor, error) {
	if def.Name == "" {
		return tool.Descriptor{}, errors.New("definition name is required")
	}
	if strings.TrimSpace(def.Expression) == "" {
		return tool.Descriptor{}, errors.New("definition expression is required")
	}

	d := tool.Descriptor{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Category:    def.Category,
	}
	if d.Category == "" {
		d.Category = tool.CategoryCustom
	}

	if len(def.ParameterSchema) > 0 {
		schema, err := tool.CompileSchema(def.ParameterSchema)
		if err != nil {
			return tool.Descriptor{}, fmt.Errorf("parameter schema: %w", err)
		}
		d.Schema = schema
	}

	program, err := expr.Compile(def.Expression, expr.Env(environment(nil)))
	if err != nil {
		return tool.Descriptor{}, fmt.Errorf("compile expression: %w", err)
	}
	d.Executor = &exprExecutor{program: program}
	return d, nil
}

// exprExecutor runs a compiled expression against the invocation parameters.
type exprExecutor struct {
	program *vm.Program
}

// Execute implements tool.Executor.
func (e *exprExecutor) Execute(ctx context.Context, params map[string]any) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	result, err := expr.Run(e.program, environment(params))
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return result, nil
}

// environment builds the allowlisted evaluation environment. Only the
// invocation parameters and pure string/number helpers are visible to
// expressions.
func environment(params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{
		"params":   params,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"trim":     strings.TrimSpace,
		"contains": strings.Contains,
		"join":     strings.Join,
		"split":    strings.Split,
		"replace":  strings.ReplaceAll,
	}
}
