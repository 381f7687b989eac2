// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/ratelimit"
)

type scanRequest struct {
	Token string `json:"token"`
}

// handleScan turns a scanned table token into a fresh guest session.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(ratelimit.GetClientIP(r), "scan") {
		writeErrorMsg(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.tokens.Validate(r.Context(), req.Token)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sess := s.sessions.Create(rec.TableID, rec.TableNumber)

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldTableID, sess.TableID).
		Msg("session created from scan")

	writeJSON(w, http.StatusCreated, sess)
}
