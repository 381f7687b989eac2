// SPDX-License-Identifier: MIT

// Package diag provides diagnostic exports of daemon state.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/mesaops/mesad/internal/eventbus"
	"github.com/mesaops/mesad/internal/log"
)

// Exporter writes snapshots of the event history to disk for offline
// inspection. Files are written atomically so a crash mid-export never
// leaves a truncated file behind.
type Exporter struct {
	bus   *eventbus.Bus
	dir   string
	clock func() time.Time
}

// NewExporter creates an exporter writing into dir.
func NewExporter(bus *eventbus.Bus, dir string) *Exporter {
	return &Exporter{bus: bus, dir: dir, clock: time.Now}
}

// WithClock overrides the time source used for file names (tests).
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// ExportHistory snapshots the retained history of every topic into a
// timestamped JSON file and returns its path. The snapshot is a copy; live
// publishing is not blocked for the duration of the file write.
func (e *Exporter) ExportHistory() (string, error) {
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	snapshot := e.bus.DrainAllHistory()

	name := fmt.Sprintf("events-%s.json", e.clock().UTC().Format("20060102T150405Z"))
	path := filepath.Join(e.dir, name)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending export file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("diag")
			logger.Debug().Err(err).Msg("cleanup pending export file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return "", fmt.Errorf("encode history export: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace export file: %w", err)
	}

	seen := make(map[string]struct{})
	for _, env := range snapshot {
		seen[env.Topic] = struct{}{}
	}
	logger := log.WithComponent("diag")
	logger.Info().
		Str("path", path).
		Int("topics", len(seen)).
		Int("events", len(snapshot)).
		Msg("event history exported")

	return path, nil
}
