// Package tool exposes the shared tool descriptor and executor types consumed
// by the catalog and the workflow orchestrator.
//
// A tool is a named, schema-validated callable capability. All tool origins
// (built-in, dynamically defined, integration-contributed) are adapted to the
// single Executor shape at registration time so callers never branch on the
// calling convention of a particular origin.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Common category tags. Categories are free-text; these cover the built-in
// origins.
const (
	CategoryWeb     = "web"
	CategoryData    = "data"
	CategoryCustom  = "custom"
	CategoryAgentic = "agentic"
)

// ErrNotFound is returned when a tool name is not registered in the catalog.
var ErrNotFound = errors.New("tool not found")

type (
	// Descriptor describes a registered tool. Descriptors are immutable once
	// registered: re-registration replaces the entry wholesale.
	Descriptor struct {
		// ID is the stable identifier of the tool definition. Defaults to
		// Name when empty; dynamic tools carry their store-assigned id.
		ID string
		// Name is the unique tool identifier.
		Name string
		// Description provides human-readable context for planners and tooling.
		Description string
		// Schema validates tool parameters before execution. Nil means the
		// tool accepts arbitrary parameters.
		Schema *jsonschema.Schema
		// Category is a free-text tag used for grouped lookups (e.g. "web").
		Category string
		// Executor runs the tool.
		Executor Executor
	}

	// Executor executes a tool invocation with structured parameters.
	Executor interface {
		Execute(ctx context.Context, params map[string]any) (any, error)
	}

	// ExecutorFunc adapts a function to the Executor interface.
	ExecutorFunc func(ctx context.Context, params map[string]any) (any, error)

	// ValidationError reports parameters that failed schema validation.
	ValidationError struct {
		// Tool is the tool name the parameters were intended for.
		Tool string
		// Err is the underlying validation failure.
		Err error
	}

	// ExecutionError reports a failure raised by the tool's own logic. It is
	// distinct from ErrNotFound so callers can tell a missing tool apart from
	// a failing one.
	ExecutionError struct {
		// Tool is the name of the failing tool.
		Tool string
		// Err is the error returned by the executor.
		Err error
	}
)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for tool %q: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying validation failure.
func (e *ValidationError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Err)
}

// Unwrap returns the executor error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// CompileSchema compiles a raw JSON schema document into a validator handle.
func CompileSchema(raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateParams validates params against the descriptor's schema. A nil
// schema accepts any parameters.
func (d *Descriptor) ValidateParams(params map[string]any) error {
	if d.Schema == nil {
		return nil
	}
	// The validator operates on generic JSON values; map[string]any is
	// already in that shape.
	doc := make(map[string]any, len(params))
	for k, v := range params {
		doc[k] = v
	}
	if err := d.Schema.Validate(doc); err != nil {
		return &ValidationError{Tool: d.Name, Err: err}
	}
	return nil
}
