// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/mesaops/mesad/internal/log"
)

// adminAuth guards staff endpoints with a static API key. With no key
// configured the admin surface is disabled entirely.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.Server.AdminAPIKey
		if key == "" {
			writeErrorMsg(w, http.StatusForbidden, "admin API disabled")
			return
		}

		got := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("admin auth failure")
			writeErrorMsg(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type tokenRequest struct {
	TableID     string `json:"tableId"`
	TableNumber int    `json:"tableNumber"`
	TTLSeconds  int    `json:"ttlSeconds,omitempty"`
}

func (req *tokenRequest) ttl(fallback time.Duration) time.Duration {
	if req.TTLSeconds > 0 {
		return time.Duration(req.TTLSeconds) * time.Second
	}
	return fallback
}

// handleIssueToken creates a fresh token for a table QR code.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableID == "" {
		writeErrorMsg(w, http.StatusBadRequest, "tableId is required")
		return
	}

	rec, err := s.tokens.Issue(r.Context(), req.TableID, req.TableNumber, req.ttl(s.cfg.Tokens.TTL))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleRotateToken revokes the table's current token and issues a new one.
// Printed QR codes with the old token stop creating sessions immediately.
func (s *Server) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableID == "" {
		writeErrorMsg(w, http.StatusBadRequest, "tableId is required")
		return
	}

	rec, err := s.tokens.Rotate(r.Context(), req.TableID, req.TableNumber, req.ttl(s.cfg.Tokens.TTL))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleExportEvents writes a snapshot of the retained event history to the
// export directory and returns its path.
func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeErrorMsg(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}

	path, err := s.exporter.ExportHistory()
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Msg("event history export failed")
		writeErrorMsg(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
