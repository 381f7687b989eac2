// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mesaops/mesad/internal/eventbus"
	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/metrics"
)

const (
	// streamQueueSize bounds the per-connection event queue. A client that
	// cannot keep up loses events rather than stalling publishers.
	streamQueueSize = 64

	heartbeatInterval = 15 * time.Second
)

// handleEventStream streams bus events to the client as Server-Sent Events.
//
//	GET /api/v1/events/stream?topics=order.placed,waiter.called&replay=true
//
// With replay=true the retained history of each topic is delivered first, so
// a dashboard reconnecting after a restart catches up before going live.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	topics := splitTopics(r.URL.Query().Get("topics"))
	if len(topics) == 0 {
		writeErrorMsg(w, http.StatusBadRequest, "topics query parameter is required")
		return
	}
	for _, topic := range topics {
		if !topicPattern.MatchString(topic) {
			writeErrorMsg(w, http.StatusBadRequest, fmt.Sprintf("invalid topic name: %s", topic))
			return
		}
	}
	replay := r.URL.Query().Get("replay") == "true"

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMsg(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribe before replaying so nothing published in between is lost;
	// duplicates are filtered by sequence below.
	queue := make(chan eventbus.Envelope, streamQueueSize)
	unsubs := make([]func(), 0, len(topics))
	for _, topic := range topics {
		topic := topic
		unsubs = append(unsubs, s.bus.Subscribe(topic, func(env eventbus.Envelope) {
			select {
			case queue <- env:
			default:
				metrics.IncStreamDropped(topic)
			}
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	logger := log.WithComponentFromContext(r.Context(), "sse")
	logger.Info().
		Strs("topics", topics).
		Bool("replay", replay).
		Msg("event stream opened")

	lastSeq := make(map[string]uint64, len(topics))
	if replay {
		for _, topic := range topics {
			for _, env := range s.bus.History(topic) {
				writeSSE(w, env)
				lastSeq[topic] = env.Sequence
			}
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("event stream closed")
			return

		case <-heartbeat.C:
			// Comment line keeps intermediaries from timing out the stream.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case env := <-queue:
			if env.Sequence <= lastSeq[env.Topic] {
				continue // already delivered during replay
			}
			lastSeq[env.Topic] = env.Sequence
			writeSSE(w, env)
			flusher.Flush()
		}
	}
}

// writeSSE writes one envelope as an SSE frame. The topic becomes the event
// name and the sequence the event ID, so EventSource clients can resume.
func writeSSE(w http.ResponseWriter, env eventbus.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", env.Topic, env.Sequence, data)
}

func splitTopics(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
