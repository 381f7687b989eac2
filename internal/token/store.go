// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"fmt"
	"sync"
)

// Store persists token records. Implementations must be safe for concurrent
// use; reads return copies.
type Store interface {
	// GetByToken returns the record for the token, or nil if unknown.
	GetByToken(ctx context.Context, tok string) (*Record, error)
	// ActiveByTable returns the non-revoked record for the table, or nil.
	ActiveByTable(ctx context.Context, tableID string) (*Record, error)
	// Put inserts a record.
	Put(ctx context.Context, rec Record) error
	// Revoke marks every non-revoked record of the table as revoked.
	Revoke(ctx context.Context, tableID string) error
	// Close releases underlying resources.
	Close() error
}

// OpenStore creates a Store based on the backend configuration.
func OpenStore(backend, path string) (Store, error) {
	if backend == "" {
		backend = "memory"
	}
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSqliteStore(path)
	default:
		return nil, fmt.Errorf("unknown token store backend: %s", backend)
	}
}

// MemoryStore is the in-memory Store used for tests and single-node setups
// that accept losing issued tokens on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byToken: make(map[string]Record)}
}

func (s *MemoryStore) GetByToken(_ context.Context, tok string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byToken[tok]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) ActiveByTable(_ context.Context, tableID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.byToken {
		if rec.TableID == tableID && !rec.Revoked {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[rec.Token] = rec
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, rec := range s.byToken {
		if rec.TableID == tableID && !rec.Revoked {
			rec.Revoked = true
			s.byToken[tok] = rec
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
