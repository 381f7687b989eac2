// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/mesaops/mesad/internal/eventbus"
)

// topicPattern constrains topic names to dotted lowercase segments, e.g.
// "order.placed" or "waiter.called".
var topicPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

const maxEventBody = 64 << 10 // 64 KiB

// handlePublishEvent publishes an arbitrary JSON payload on a topic and
// returns the assigned envelope.
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if !topicPattern.MatchString(topic) {
		writeErrorMsg(w, http.StatusBadRequest, "invalid topic name")
		return
	}

	var payload any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&payload); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	env, err := s.bus.Publish(topic, payload)
	if err != nil {
		if errors.Is(err, eventbus.ErrReentrantPublish) {
			writeErrorMsg(w, http.StatusConflict, "re-entrant publish rejected")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, env)
}

// handleEventHistory returns the retained history of a topic, oldest first.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if !topicPattern.MatchString(topic) {
		writeErrorMsg(w, http.StatusBadRequest, "invalid topic name")
		return
	}

	writeJSON(w, http.StatusOK, s.bus.History(topic))
}
