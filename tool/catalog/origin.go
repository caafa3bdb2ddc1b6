package catalog

import (
	"context"

	"github.com/appforge/toolflow/tool"
)

type (
	// Origin contributes tools to the catalog during initialization. Origins
	// cover the three sources the catalog merges: built-in tools, dynamically
	// defined tools, and tools contributed by external integrations.
	Origin interface {
		// Name identifies the origin in logs.
		Name() string
		// Tools returns the descriptors contributed by this origin. An error
		// aborts catalog initialization; origins that can degrade gracefully
		// (e.g. skipping one malformed definition) handle that internally.
		Tools(ctx context.Context) ([]tool.Descriptor, error)
	}

	// StaticOrigin contributes a fixed descriptor list. Use it for built-in
	// tools and for integration-contributed tools that are known at wiring
	// time.
	StaticOrigin struct {
		// OriginName identifies the origin in logs.
		OriginName string
		// Descriptors are the contributed tools.
		Descriptors []tool.Descriptor
	}
)

// Compile-time check that StaticOrigin implements Origin.
var _ Origin = (*StaticOrigin)(nil)

// Name implements Origin.
func (o *StaticOrigin) Name() string { return o.OriginName }

// Tools implements Origin.
func (o *StaticOrigin) Tools(ctx context.Context) ([]tool.Descriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	out := make([]tool.Descriptor, len(o.Descriptors))
	copy(out, o.Descriptors)
	return out, nil
}
