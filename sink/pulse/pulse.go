// Package pulse publishes core events to a Pulse stream backed by Redis.
// Downstream consumers (dashboards, audit pipelines) read the stream through
// Pulse sinks; this package only writes.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/appforge/toolflow/sink"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Redis is the Redis connection used to back the Pulse stream. Required.
		Redis *redis.Client
		// StreamName names the Pulse stream. Defaults to "toolflow:events".
		StreamName string
		// StreamMaxLen bounds the number of entries kept in the stream.
		// Zero uses Pulse defaults.
		StreamMaxLen int
		// OperationTimeout bounds individual Add operations. Zero means no
		// timeout.
		OperationTimeout time.Duration
	}

	// Sink implements sink.Sink on a Pulse stream.
	Sink struct {
		stream  *streaming.Stream
		timeout time.Duration
	}
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// New creates a Pulse-backed sink. Returns an error if no Redis client is
// provided or the stream cannot be opened.
func New(opts Options) (*Sink, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	name := opts.StreamName
	if name == "" {
		name = "toolflow:events"
	}
	var streamOptions []streamopts.Stream
	if opts.StreamMaxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(opts.StreamMaxLen))
	}
	stream, err := streaming.NewStream(name, opts.Redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("create pulse stream: %w", err)
	}
	return &Sink{stream: stream, timeout: opts.OperationTimeout}, nil
}

// Record implements sink.Sink. The metadata map is JSON-encoded as the event
// payload.
func (s *Sink) Record(ctx context.Context, name string, metadata map[string]any) error {
	if name == "" {
		return errors.New("event name is required")
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.stream.Add(ctx, name, payload); err != nil {
		return fmt.Errorf("pulse add: %w", err)
	}
	return nil
}
