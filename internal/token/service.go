// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesaops/mesad/internal/cache"
	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/metrics"
)

const cacheTTL = 30 * time.Second

// Service validates, issues and rotates table tokens. Validate is the hot
// path (every QR scan); an optional read-through cache sits in front of the
// store for it. Issue and Rotate always go to the store and invalidate the
// cache.
type Service struct {
	store Store
	cache cache.Cache
	clock func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache installs a read-through cache for Validate.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService creates a token service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		cache: cache.NewNoOp(),
		clock: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Validate resolves a scanned token to its record. Pure lookup, no side
// effects: unknown or rotated-away tokens fail with ErrInvalidToken, tokens
// past their own expiry with ErrTokenExpired.
func (s *Service) Validate(ctx context.Context, tok string) (Record, error) {
	if tok == "" {
		metrics.IncTokenValidation("invalid")
		return Record{}, ErrInvalidToken
	}

	rec, err := s.lookup(ctx, tok)
	if err != nil {
		return Record{}, err
	}
	if rec == nil || rec.Revoked {
		metrics.IncTokenValidation("invalid")
		return Record{}, ErrInvalidToken
	}
	if rec.ExpiresAt != nil && s.clock().After(*rec.ExpiresAt) {
		metrics.IncTokenValidation("expired")
		return Record{}, ErrTokenExpired
	}

	metrics.IncTokenValidation("ok")
	return *rec, nil
}

func (s *Service) lookup(ctx context.Context, tok string) (*Record, error) {
	if cached, ok := s.cache.Get(cacheKey(tok)); ok {
		if rec, ok := decodeCached(cached); ok {
			return rec, nil
		}
	}

	rec, err := s.store.GetByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if rec != nil {
		s.cache.Set(cacheKey(tok), *rec, cacheTTL)
	}
	return rec, nil
}

// Issue creates a fresh token for the table. ttl <= 0 issues a token without
// its own expiry (session expiry still applies downstream).
func (s *Service) Issue(ctx context.Context, tableID string, tableNumber int, ttl time.Duration) (Record, error) {
	now := s.clock()
	rec := Record{
		Token:       uuid.NewString(),
		TableID:     tableID,
		TableNumber: tableNumber,
		IssuedAt:    now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		rec.ExpiresAt = &exp
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("issue token: %w", err)
	}

	logger := log.WithComponent("token")
	logger.Info().
		Str(log.FieldTableID, tableID).
		Int("table_number", tableNumber).
		Msg("token issued")
	return rec, nil
}

// Rotate revokes the table's current token and issues a new one. Sessions
// already created from the old token are unaffected; only new session
// creation is cut off.
func (s *Service) Rotate(ctx context.Context, tableID string, tableNumber int, ttl time.Duration) (Record, error) {
	old, err := s.store.ActiveByTable(ctx, tableID)
	if err != nil {
		return Record{}, fmt.Errorf("rotate token: %w", err)
	}

	if err := s.store.Revoke(ctx, tableID); err != nil {
		return Record{}, fmt.Errorf("rotate token: %w", err)
	}
	if old != nil {
		s.cache.Delete(cacheKey(old.Token))
	}

	rec, err := s.Issue(ctx, tableID, tableNumber, ttl)
	if err != nil {
		return Record{}, err
	}

	metrics.TokenRotationsTotal.Inc()
	logger := log.WithComponent("token")
	logger.Info().
		Str(log.FieldTableID, tableID).
		Msg("token rotated")
	return rec, nil
}

func cacheKey(tok string) string {
	return "token:" + tok
}

// decodeCached converts a cached value back to a Record. The memory cache
// stores the Record itself; the Redis cache round-trips through JSON and
// yields a map, which is re-decoded here.
func decodeCached(v any) (*Record, bool) {
	switch val := v.(type) {
	case Record:
		return &val, true
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, false
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, false
		}
		return &rec, true
	default:
		return nil, false
	}
}
