// Package redis provides a Redis-backed implementation of ledger.Store.
//
// Each record is stored as a JSON value and indexed in four sorted sets
// (global, by tool, by thread, by agent) scored by append time, so both
// global and scoped most-recent-N queries are cheap. Aggregate statistics
// live in a per-tool hash maintained with native increment commands. All
// writes for one record are issued in a single MULTI/EXEC transaction so a
// reader never observes a partially updated index set, and concurrent
// writers need no coordination beyond the transaction itself.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/appforge/toolflow/ledger"
	"github.com/appforge/toolflow/telemetry"
)

type (
	// Options configures the Redis ledger.
	Options struct {
		// Client is the Redis connection. Required.
		Client *redis.Client
		// KeyPrefix namespaces all ledger keys. Defaults to "toolflow".
		KeyPrefix string
		// Logger receives warnings about malformed stored entries. Defaults
		// to a no-op logger.
		Logger telemetry.Logger
	}

	// Store implements ledger.Store on Redis.
	Store struct {
		rdb    *redis.Client
		prefix string
		logger telemetry.Logger
	}
)

// Compile-time check that Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Stats hash field names.
const (
	fieldTotal       = "total_executions"
	fieldSuccess     = "successful_executions"
	fieldFailed      = "failed_executions"
	fieldTimeSumMs   = "execution_time_sum_ms"
	fieldTimeSamples = "execution_time_sample_count"
	fieldLastAt      = "last_execution_at"
)

// New creates a Redis-backed ledger. Returns an error if no client is
// provided.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "toolflow"
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Store{rdb: opts.Client, prefix: prefix, logger: logger}, nil
}

func (s *Store) recordKey(id string) string { return s.prefix + ":execution:" + id }
func (s *Store) globalKey() string          { return s.prefix + ":executions:all" }
func (s *Store) toolKey(name string) string { return s.prefix + ":executions:tool:" + name }
func (s *Store) threadKey(id string) string { return s.prefix + ":executions:thread:" + id }
func (s *Store) agentKey(id string) string  { return s.prefix + ":executions:agent:" + id }
func (s *Store) statsKey(name string) string {
	return s.prefix + ":toolstats:" + name
}

// LogExecution implements ledger.Store.
func (s *Store) LogExecution(ctx context.Context, in ledger.Input) (string, error) {
	rec := ledger.Record{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Input:     in,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode execution record: %w", err)
	}
	score := float64(rec.CreatedAt.UnixMilli())
	member := redis.Z{Score: score, Member: rec.ID}
	statsKey := s.statsKey(in.ToolName)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.ID), payload, 0)
	pipe.ZAdd(ctx, s.globalKey(), member)
	pipe.ZAdd(ctx, s.toolKey(in.ToolName), member)
	if in.ThreadID != "" {
		pipe.ZAdd(ctx, s.threadKey(in.ThreadID), member)
	}
	if in.AgentID != "" {
		pipe.ZAdd(ctx, s.agentKey(in.AgentID), member)
	}
	pipe.HIncrBy(ctx, statsKey, fieldTotal, 1)
	switch in.Status {
	case ledger.StatusSuccess:
		pipe.HIncrBy(ctx, statsKey, fieldSuccess, 1)
	case ledger.StatusError:
		pipe.HIncrBy(ctx, statsKey, fieldFailed, 1)
	}
	if in.ExecutionTimeMs != nil {
		pipe.HIncrByFloat(ctx, statsKey, fieldTimeSumMs, float64(*in.ExecutionTimeMs))
		pipe.HIncrBy(ctx, statsKey, fieldTimeSamples, 1)
	}
	pipe.HSet(ctx, statsKey, fieldLastAt, rec.CreatedAt.UnixMilli())

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("log execution: %w", errors.Join(ledger.ErrUnavailable, err))
	}
	return rec.ID, nil
}

// GetExecution implements ledger.Store.
func (s *Store) GetExecution(ctx context.Context, id string) (*ledger.Record, error) {
	payload, err := s.rdb.Get(ctx, s.recordKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("get execution %q: %w", id, errors.Join(ledger.ErrUnavailable, err))
	}
	var rec ledger.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode execution %q: %w", id, err)
	}
	return &rec, nil
}

// ListExecutions implements ledger.Store.
func (s *Store) ListExecutions(ctx context.Context, toolName string, limit, offset int) ([]*ledger.Record, error) {
	return s.list(ctx, s.toolKey(toolName), limit, offset)
}

// ListExecutionsByThread implements ledger.Store.
func (s *Store) ListExecutionsByThread(ctx context.Context, threadID string, limit, offset int) ([]*ledger.Record, error) {
	return s.list(ctx, s.threadKey(threadID), limit, offset)
}

// ListExecutionsByAgent implements ledger.Store.
func (s *Store) ListExecutionsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*ledger.Record, error) {
	return s.list(ctx, s.agentKey(agentID), limit, offset)
}

// Stats implements ledger.Store.
func (s *Store) Stats(ctx context.Context, toolName string) (ledger.Stats, error) {
	out := ledger.Stats{ToolName: toolName}
	fields, err := s.rdb.HGetAll(ctx, s.statsKey(toolName)).Result()
	if err != nil {
		return out, fmt.Errorf("get stats for %q: %w", toolName, errors.Join(ledger.ErrUnavailable, err))
	}
	if len(fields) == 0 {
		return out, nil
	}
	out.TotalExecutions = parseInt(fields[fieldTotal])
	out.SuccessfulExecutions = parseInt(fields[fieldSuccess])
	out.FailedExecutions = parseInt(fields[fieldFailed])
	out.ExecutionTimeSampleCount = parseInt(fields[fieldTimeSamples])
	if out.ExecutionTimeSampleCount > 0 {
		sum, _ := strconv.ParseFloat(fields[fieldTimeSumMs], 64)
		out.AvgExecutionTimeMs = sum / float64(out.ExecutionTimeSampleCount)
	}
	if ms := parseInt(fields[fieldLastAt]); ms > 0 {
		at := time.UnixMilli(ms).UTC()
		out.LastExecutionAt = &at
	}
	return out, nil
}

// list pages through a sorted-set index, most recent first. Malformed or
// missing entries are skipped with a warning.
func (s *Store) list(ctx context.Context, indexKey string, limit, offset int) ([]*ledger.Record, error) {
	if limit <= 0 || offset < 0 {
		return []*ledger.Record{}, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, indexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", errors.Join(ledger.ErrUnavailable, err))
	}
	if len(ids) == 0 {
		return []*ledger.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load execution records: %w", errors.Join(ledger.ErrUnavailable, err))
	}
	out := make([]*ledger.Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn(ctx, "execution record missing from store", "id", ids[i])
			continue
		}
		var rec ledger.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			s.logger.Warn(ctx, "skipping malformed execution record", "id", ids[i], "err", err.Error())
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
