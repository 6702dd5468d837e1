// Package export serializes Store slices to durable JSON files with
// all-or-nothing visibility.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// Exporter writes deterministic JSON snapshots into a directory.
type Exporter struct {
	dir    string
	logger *zap.Logger
}

// New creates an Exporter rooted at dir.
func New(dir string, logger *zap.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// Export serializes data and atomically replaces <dir>/<name> with it.
// Serialization is deterministic: map keys come out lexicographically
// sorted and the output is 2-space indented, so identical input yields
// byte-identical files. The final path is only ever touched by the
// rename, so a concurrent reader sees either the old or the new
// complete file.
func (e *Exporter) Export(name string, data any) error {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	body = append(body, '\n')

	tmp := filepath.Join(e.dir, name+".swp")
	final := filepath.Join(e.dir, name)

	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", final, err)
	}
	return nil
}

// ExportAll writes every exported slice of the snapshot: the chat log,
// the node set, the telemetry log, and the traceroute log. Failures are
// collected and returned; each successful file logs its record count
// and destination.
func (e *Exporter) ExportAll(snap *mesh.Snapshot) error {
	var errs []error

	if err := e.Export("chat.json", chatDocument(snap)); err != nil {
		errs = append(errs, err)
	} else {
		e.logger.Info("Saved chat messages to file",
			zap.Int("count", len(snap.Chat[mesh.PrimaryChannel])),
			zap.String("path", filepath.Join(e.dir, "chat.json")),
		)
	}

	if err := e.Export("nodes.json", snap.Nodes); err != nil {
		errs = append(errs, err)
	} else {
		e.logger.Info("Saved nodes to file",
			zap.Int("count", len(snap.Nodes)),
			zap.String("path", filepath.Join(e.dir, "nodes.json")),
		)
	}

	if err := e.Export("telemetry.json", snap.Telemetry); err != nil {
		errs = append(errs, err)
	} else {
		e.logger.Info("Saved telemetry to file",
			zap.Int("count", len(snap.Telemetry)),
			zap.String("path", filepath.Join(e.dir, "telemetry.json")),
		)
	}

	if err := e.Export("traceroutes.json", snap.Traceroutes); err != nil {
		errs = append(errs, err)
	} else {
		e.logger.Info("Saved traceroutes to file",
			zap.Int("count", len(snap.Traceroutes)),
			zap.String("path", filepath.Join(e.dir, "traceroutes.json")),
		)
	}

	return errors.Join(errs...)
}

// chatDocument shapes the chat export as channel-index keyed messages.
func chatDocument(snap *mesh.Snapshot) map[string]any {
	channels := make(map[string]any, len(snap.Chat))
	for ch, msgs := range snap.Chat {
		channels[ch] = map[string]any{"messages": msgs}
	}
	return map[string]any{"channels": channels}
}
