// SPDX-License-Identifier: MIT

package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readSSEEvents reads frames from an SSE stream until n data lines arrived
// or the context expires.
func readSSEEvents(t *testing.T, body *bufio.Reader, n int, deadline time.Duration) []string {
	t.Helper()

	done := make(chan []string, 1)
	go func() {
		var events []string
		for len(events) < n {
			line, err := body.ReadString('\n')
			if err != nil {
				break
			}
			if strings.HasPrefix(line, "data: ") {
				events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
			}
		}
		done <- events
	}()

	select {
	case events := <-done:
		return events
	case <-time.After(deadline):
		t.Fatalf("timed out waiting for %d SSE events", n)
		return nil
	}
}

func TestEventStreamReplaysAndFollows(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	// History present before the client connects.
	env.bus.Publish("order.placed", map[string]any{"n": 1})
	env.bus.Publish("order.placed", map[string]any{"n": 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET",
		ts.URL+"/api/v1/events/stream?topics=order.placed&replay=true", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// Both history events replay first.
	replayed := readSSEEvents(t, reader, 2, 5*time.Second)
	require.Len(t, replayed, 2)
	assert.Contains(t, replayed[0], `"sequence":1`)
	assert.Contains(t, replayed[1], `"sequence":2`)

	// A live publish follows on the same stream.
	env.bus.Publish("order.placed", map[string]any{"n": 3})
	live := readSSEEvents(t, reader, 1, 5*time.Second)
	require.Len(t, live, 1)
	assert.Contains(t, live[0], `"sequence":3`)
}

func TestEventStreamWithoutReplaySkipsHistory(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	env.bus.Publish("waiter.called", map[string]any{"old": true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET",
		ts.URL+"/api/v1/events/stream?topics=waiter.called", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	reader := bufio.NewReader(resp.Body)

	// Give the subscription a moment to register, then publish.
	time.Sleep(100 * time.Millisecond)
	env.bus.Publish("waiter.called", map[string]any{"fresh": true})

	events := readSSEEvents(t, reader, 1, 5*time.Second)
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"fresh":true`)
	assert.NotContains(t, events[0], `"old"`)
}

func TestEventStreamRequiresTopics(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/events/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/events/stream?topics=BAD!", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventStreamMultipleTopics(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET",
		ts.URL+"/api/v1/events/stream?topics=order.placed,waiter.called", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	reader := bufio.NewReader(resp.Body)

	time.Sleep(100 * time.Millisecond)
	env.bus.Publish("order.placed", map[string]any{"n": 1})
	env.bus.Publish("waiter.called", map[string]any{"n": 2})

	events := readSSEEvents(t, reader, 2, 5*time.Second)
	require.Len(t, events, 2)

	joined := strings.Join(events, "\n")
	assert.Contains(t, joined, "order.placed")
	assert.Contains(t, joined, "waiter.called")
}
