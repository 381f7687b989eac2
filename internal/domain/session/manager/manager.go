// SPDX-License-Identifier: MIT

// Package manager owns the in-memory registry of guest sessions: creation,
// extension, lazy expiry, close, listing and statistics. Every state change
// is published on the event bus; observers are never handed registry refs.
package manager

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesaops/mesad/internal/domain/session/model"
	"github.com/mesaops/mesad/internal/eventbus"
	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/metrics"
)

var (
	// ErrNotFound is returned when no session with the given id exists.
	ErrNotFound = errors.New("session not found")
	// ErrTerminal is returned for extend/close on an expired or closed session.
	ErrTerminal = errors.New("session in terminal state")
)

// Defaults for the session lifetime policy.
const (
	DefaultDuration  = 60 * time.Minute
	DefaultExtension = 30 * time.Minute
)

// Config tunes the manager. Zero fields fall back to defaults.
type Config struct {
	Duration  time.Duration  // initial session lifetime
	Extension time.Duration  // added per extend call
	Location  *time.Location // reference timezone for todayTotal
}

// Manager is safe for concurrent use. Operations on a single session id are
// linearizable: the registry mutex covers the full read-modify-write.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	order    []string // insertion order for List

	bus   *eventbus.Bus
	clock func() time.Time

	duration  time.Duration
	extension time.Duration
	loc       *time.Location
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// New creates a Manager publishing transitions on bus.
func New(bus *eventbus.Bus, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*model.Session),
		bus:       bus,
		clock:     time.Now,
		duration:  cfg.Duration,
		extension: cfg.Extension,
		loc:       cfg.Location,
	}
	if m.duration <= 0 {
		m.duration = DefaultDuration
	}
	if m.extension <= 0 {
		m.extension = DefaultExtension
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create registers a new active session for the table and publishes
// session.created. Token validation is the caller's job; multiple concurrent
// sessions per table are permitted here.
func (m *Manager) Create(tableID string, tableNumber int) model.Session {
	now := m.clock()
	s := model.Session{
		ID:          uuid.NewString(),
		TableID:     tableID,
		TableNumber: tableNumber,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.duration),
		Status:      model.StatusActive,
	}

	m.mu.Lock()
	stored := s
	m.sessions[s.ID] = &stored
	m.order = append(m.order, s.ID)
	m.mu.Unlock()

	metrics.SessionsCreatedTotal.Inc()
	logger := log.WithComponent("session")
	logger.Info().
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldTableID, tableID).
		Int("table_number", tableNumber).
		Time("expires_at", s.ExpiresAt).
		Msg("session created")

	m.publish(model.TopicSessionCreated, s)
	return s
}

// Get returns a snapshot of the session, applying lazy expiry first: an
// active session whose expiry has passed transitions to expired (publishing
// session.expired exactly once) before the snapshot is returned.
func (m *Manager) Get(id string) (model.Session, error) {
	now := m.clock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return model.Session{}, ErrNotFound
	}
	expired := m.expireLocked(s, now)
	snap := *s
	m.mu.Unlock()

	if expired {
		m.noteExpired(snap)
	}
	return snap, nil
}

// Extend pushes ExpiresAt forward by the configured extension and publishes
// session.extended. Terminal sessions (closed, or lazily detected expired)
// fail with ErrTerminal and are never mutated.
func (m *Manager) Extend(id string) (model.Session, error) {
	now := m.clock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return model.Session{}, ErrNotFound
	}
	if expired := m.expireLocked(s, now); expired {
		snap := *s
		m.mu.Unlock()
		m.noteExpired(snap)
		return model.Session{}, ErrTerminal
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return model.Session{}, ErrTerminal
	}
	s.ExpiresAt = s.ExpiresAt.Add(m.extension)
	snap := *s
	m.mu.Unlock()

	metrics.SessionsExtendedTotal.Inc()
	logger := log.WithComponent("session")
	logger.Info().
		Str(log.FieldSessionID, id).
		Time("expires_at", snap.ExpiresAt).
		Msg("session extended")

	m.publish(model.TopicSessionExtended, snap)
	return snap, nil
}

// Close terminates the session and publishes session.closed. Closing a
// terminal session fails with ErrTerminal without mutating anything.
func (m *Manager) Close(id string) (model.Session, error) {
	now := m.clock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return model.Session{}, ErrNotFound
	}
	if expired := m.expireLocked(s, now); expired {
		snap := *s
		m.mu.Unlock()
		m.noteExpired(snap)
		return model.Session{}, ErrTerminal
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return model.Session{}, ErrTerminal
	}
	s.Status = model.StatusClosed
	snap := *s
	m.mu.Unlock()

	metrics.SessionsClosedTotal.Inc()
	logger := log.WithComponent("session")
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldOldState, string(model.StatusActive)).
		Str(log.FieldNewState, string(model.StatusClosed)).
		Msg("session closed")

	m.publish(model.TopicSessionClosed, snap)
	return snap, nil
}

// List returns snapshots of every registered session in insertion order,
// regardless of status. Lazy expiry applies so callers never see a
// stale-but-nominally-active entry.
func (m *Manager) List() []model.Session {
	now := m.clock()

	m.mu.Lock()
	out := make([]model.Session, 0, len(m.order))
	var expired []model.Session
	for _, id := range m.order {
		s, ok := m.sessions[id]
		if !ok {
			continue
		}
		if m.expireLocked(s, now) {
			expired = append(expired, *s)
		}
		out = append(out, *s)
	}
	m.mu.Unlock()

	for _, snap := range expired {
		m.noteExpired(snap)
	}
	return out
}

// Stats recomputes the aggregate counters from the registry. TotalActive
// evaluates freshness at read time; TodayTotal counts sessions created
// within the current calendar day in the configured reference timezone.
func (m *Manager) Stats() model.Statistics {
	now := m.clock()
	y, mo, d := now.In(m.loc).Date()

	m.mu.Lock()
	defer m.mu.Unlock()

	var st model.Statistics
	for _, s := range m.sessions {
		if s.Fresh(now) {
			st.TotalActive++
		}
		cy, cmo, cd := s.CreatedAt.In(m.loc).Date()
		if cy == y && cmo == mo && cd == d {
			st.TodayTotal++
		}
	}
	return st
}

// expireLocked applies the lazy expiry transition. Returns true when this
// call performed the active→expired transition; the caller publishes the
// event after releasing the mutex.
func (m *Manager) expireLocked(s *model.Session, now time.Time) bool {
	if s.Status != model.StatusActive || !now.After(s.ExpiresAt) {
		return false
	}
	s.Status = model.StatusExpired
	return true
}

func (m *Manager) noteExpired(snap model.Session) {
	metrics.SessionsExpiredTotal.Inc()
	logger := log.WithComponent("session")
	logger.Info().
		Str(log.FieldSessionID, snap.ID).
		Msg("session expired")
	m.publish(model.TopicSessionExpired, snap)
}

func (m *Manager) publish(topic string, snap model.Session) {
	if m.bus == nil {
		return
	}
	if _, err := m.bus.Publish(topic, snap); err != nil {
		logger := log.WithComponent("session")
		logger.Error().
			Err(err).
			Str(log.FieldTopic, topic).
			Str(log.FieldSessionID, snap.ID).
			Msg("failed to publish session event")
	}
}

// removeLocked deletes a session from the registry and the insertion-order
// index. Used by the sweeper only.
func (m *Manager) removeLocked(id string) {
	delete(m.sessions, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
