// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"
)

// handleHealthz reports liveness. The daemon is healthy as long as the
// process serves requests.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReadyz reports readiness. All state is in-process, so readiness
// follows liveness once the services are wired.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil || s.bus == nil || s.tokens == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
