// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"time"

	"github.com/mesaops/mesad/internal/domain/session/model"
	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/metrics"
)

// SweeperConfig defines the background sweep cadence and retention policy.
type SweeperConfig struct {
	Interval  time.Duration // tick interval; <= 0 disables the loop
	Retention time.Duration // how long terminal sessions stay in the registry
}

// Sweeper periodically applies the same lazy-expiry check the read paths use
// and prunes long-terminal sessions. Expiry correctness never depends on it;
// it only bounds memory growth from idle expired sessions.
type Sweeper struct {
	Mgr  *Manager
	Conf SweeperConfig
}

// Run starts the sweeper loop and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Conf.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("sweeper")
	logger.Info().
		Dur("interval", s.Conf.Interval).
		Dur("retention", s.Conf.Retention).
		Msg("background sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce performs exactly one sweep pass. Deterministic, suitable for
// unit testing.
func (s *Sweeper) SweepOnce() {
	m := s.Mgr
	now := m.clock()

	// Pass 1: lazy expiry across the whole registry, via the same transition
	// the read paths use. Events publish after the lock is released.
	m.mu.Lock()
	var expired []model.Session
	for _, sess := range m.sessions {
		if m.expireLocked(sess, now) {
			expired = append(expired, *sess)
		}
	}

	// Pass 2: prune terminal sessions past retention. ExpiresAt doubles as
	// the terminal timestamp reference; retention <= 0 keeps everything.
	pruned := 0
	if s.Conf.Retention > 0 {
		cutoff := now.Add(-s.Conf.Retention)
		for id, sess := range m.sessions {
			if sess.Status.IsTerminal() && sess.ExpiresAt.Before(cutoff) {
				m.removeLocked(id)
				pruned++
			}
		}
	}

	active := 0
	for _, sess := range m.sessions {
		if sess.Fresh(now) {
			active++
		}
	}
	m.mu.Unlock()

	for _, snap := range expired {
		m.noteExpired(snap)
	}

	metrics.SessionsActive.Set(float64(active))
	if pruned > 0 {
		metrics.SessionsSweptTotal.Add(float64(pruned))
		logger := log.WithComponent("sweeper")
		logger.Info().
			Int("count", pruned).
			Msg("sweep removed terminal sessions past retention")
	}
}
