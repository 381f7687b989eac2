// SPDX-License-Identifier: MIT

package diag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesaops/mesad/internal/eventbus"
)

func TestExportHistoryWritesSnapshot(t *testing.T) {
	bus := eventbus.New()
	bus.Publish("session.created", map[string]any{"sessionId": "s1"})
	bus.Publish("session.created", map[string]any{"sessionId": "s2"})
	bus.Publish("order.placed", map[string]any{"item": "espresso"})

	dir := t.TempDir()
	ts := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	exp := NewExporter(bus, dir).WithClock(func() time.Time { return ts })

	path, err := exp.ExportHistory()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "events-20260831T143000Z.json"), path)

	data, err := os.ReadFile(path) // #nosec G304 -- test-owned temp path
	require.NoError(t, err)

	var envs []eventbus.Envelope
	require.NoError(t, json.Unmarshal(data, &envs))
	require.Len(t, envs, 3)

	topics := make(map[string]int)
	for _, env := range envs {
		topics[env.Topic]++
	}
	assert.Equal(t, 2, topics["session.created"])
	assert.Equal(t, 1, topics["order.placed"])
}

func TestExportHistoryEmptyBus(t *testing.T) {
	bus := eventbus.New()
	exp := NewExporter(bus, t.TempDir())

	path, err := exp.ExportHistory()
	require.NoError(t, err)

	data, err := os.ReadFile(path) // #nosec G304 -- test-owned temp path
	require.NoError(t, err)

	var envs []eventbus.Envelope
	require.NoError(t, json.Unmarshal(data, &envs))
	assert.Empty(t, envs)
}

func TestExportHistoryCreatesDir(t *testing.T) {
	bus := eventbus.New()
	bus.Publish("t", nil)

	dir := filepath.Join(t.TempDir(), "nested", "exports")
	exp := NewExporter(bus, dir)

	path, err := exp.ExportHistory()
	require.NoError(t, err)
	assert.FileExists(t, path)
}
