// Package inmem provides an in-memory implementation of ledger.Store.
//
// The in-memory ledger is intended for tests and local development. It is not
// durable and should not be used in production.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appforge/toolflow/ledger"
)

// Store implements ledger.Store in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*ledger.Record
	// insertion-ordered indices, oldest first.
	byTool   map[string][]string
	byThread map[string][]string
	byAgent  map[string][]string
	all      []string
	// incrementally maintained aggregates.
	stats map[string]*statsAccum
}

type statsAccum struct {
	total     int64
	success   int64
	failed    int64
	timeSumMs float64
	samples   int64
	lastAt    time.Time
}

// Compile-time check that Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// New returns a new in-memory ledger.
func New() *Store {
	return &Store{
		records:  make(map[string]*ledger.Record),
		byTool:   make(map[string][]string),
		byThread: make(map[string][]string),
		byAgent:  make(map[string][]string),
		stats:    make(map[string]*statsAccum),
	}
}

// LogExecution implements ledger.Store.
func (s *Store) LogExecution(ctx context.Context, in ledger.Input) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	rec := &ledger.Record{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Input:     in,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec
	s.all = append(s.all, rec.ID)
	s.byTool[in.ToolName] = append(s.byTool[in.ToolName], rec.ID)
	if in.ThreadID != "" {
		s.byThread[in.ThreadID] = append(s.byThread[in.ThreadID], rec.ID)
	}
	if in.AgentID != "" {
		s.byAgent[in.AgentID] = append(s.byAgent[in.AgentID], rec.ID)
	}

	acc := s.stats[in.ToolName]
	if acc == nil {
		acc = &statsAccum{}
		s.stats[in.ToolName] = acc
	}
	acc.total++
	switch in.Status {
	case ledger.StatusSuccess:
		acc.success++
	case ledger.StatusError:
		acc.failed++
	}
	if in.ExecutionTimeMs != nil {
		acc.timeSumMs += float64(*in.ExecutionTimeMs)
		acc.samples++
	}
	acc.lastAt = rec.CreatedAt

	return rec.ID, nil
}

// GetExecution implements ledger.Store.
func (s *Store) GetExecution(ctx context.Context, id string) (*ledger.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListExecutions implements ledger.Store.
func (s *Store) ListExecutions(ctx context.Context, toolName string, limit, offset int) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page(ctx, s.byTool[toolName], limit, offset)
}

// ListExecutionsByThread implements ledger.Store.
func (s *Store) ListExecutionsByThread(ctx context.Context, threadID string, limit, offset int) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page(ctx, s.byThread[threadID], limit, offset)
}

// ListExecutionsByAgent implements ledger.Store.
func (s *Store) ListExecutionsByAgent(ctx context.Context, agentID string, limit, offset int) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page(ctx, s.byAgent[agentID], limit, offset)
}

// Stats implements ledger.Store.
func (s *Store) Stats(ctx context.Context, toolName string) (ledger.Stats, error) {
	select {
	case <-ctx.Done():
		return ledger.Stats{}, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := ledger.Stats{ToolName: toolName}
	acc, ok := s.stats[toolName]
	if !ok {
		return out, nil
	}
	out.TotalExecutions = acc.total
	out.SuccessfulExecutions = acc.success
	out.FailedExecutions = acc.failed
	out.ExecutionTimeSampleCount = acc.samples
	if acc.samples > 0 {
		out.AvgExecutionTimeMs = acc.timeSumMs / float64(acc.samples)
	}
	if !acc.lastAt.IsZero() {
		at := acc.lastAt
		out.LastExecutionAt = &at
	}
	return out, nil
}

// page returns up to limit records from the insertion-ordered id slice, most
// recent first, skipping offset entries. Callers must hold the read lock.
func (s *Store) page(ctx context.Context, ids []string, limit, offset int) ([]*ledger.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if limit <= 0 || offset < 0 || offset >= len(ids) {
		return []*ledger.Record{}, nil
	}
	out := make([]*ledger.Record, 0, limit)
	for i := len(ids) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		rec, ok := s.records[ids[i]]
		if !ok {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
