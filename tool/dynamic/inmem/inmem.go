// Package inmem provides an in-memory implementation of the dynamic tool
// definition store, suitable for tests and single-node development.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appforge/toolflow/tool/dynamic"
)

// Store is an in-memory implementation of dynamic.Store. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	defs map[string]*dynamic.Definition
}

// Compile-time check that Store implements dynamic.Store.
var _ dynamic.Store = (*Store)(nil)

// New creates a new in-memory definition store.
func New() *Store {
	return &Store{defs: make(map[string]*dynamic.Definition)}
}

// SaveDefinition stores or updates a definition, assigning an id when empty.
func (s *Store) SaveDefinition(ctx context.Context, def *dynamic.Definition) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if def.ID == "" {
		def.ID = uuid.New().String()
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	cp := *def
	s.defs[def.ID] = &cp
	return nil
}

// GetDefinition retrieves a definition by id.
func (s *Store) GetDefinition(ctx context.Context, id string) (*dynamic.Definition, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, dynamic.ErrNotFound
	}
	cp := *def
	return &cp, nil
}

// DeleteDefinition removes a definition by id.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return dynamic.ErrNotFound
	}
	delete(s.defs, id)
	return nil
}

// ListDefinitions returns all definitions.
func (s *Store) ListDefinitions(ctx context.Context) ([]*dynamic.Definition, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*dynamic.Definition, 0, len(s.defs))
	for _, def := range s.defs {
		cp := *def
		out = append(out, &cp)
	}
	return out, nil
}
