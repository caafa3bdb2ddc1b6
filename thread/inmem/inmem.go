// Package inmem provides an in-memory implementation of thread.Store.
//
// The in-memory store is intended for tests and local development. It is not
// durable and should not be used in production.
package inmem

import (
	"context"
	"sync"

	"github.com/appforge/toolflow/thread"
)

// Store implements thread.Store in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages map[string][]thread.Message
}

// Compile-time check that Store implements thread.Store.
var _ thread.Store = (*Store)(nil)

// New returns a new in-memory thread store.
func New() *Store {
	return &Store{messages: make(map[string][]thread.Message)}
}

// Messages implements thread.Store.
func (s *Store) Messages(ctx context.Context, threadID string) ([]thread.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[threadID]
	out := make([]thread.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SaveMessage implements thread.Store.
func (s *Store) SaveMessage(ctx context.Context, threadID string, msg thread.Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[threadID] = append(s.messages[threadID], msg)
	return nil
}
