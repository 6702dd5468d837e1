package export_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/export"
	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

func testSnapshot() *mesh.Snapshot {
	s := mesh.NewStore()
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.UpsertNode("!1a2b3c4d", mesh.NodeFields{ShortName: "ND1", LastSeen: seen})
	s.UpsertNode("!aabbccdd", mesh.NodeFields{ShortName: "ND2", LastSeen: seen})
	s.AppendChat(mesh.ChatMessage{From: "1a2b3c4d", Text: "hello", Timestamp: seen})
	s.AppendTelemetry(mesh.TelemetryRecord{From: "1a2b3c4d", Timestamp: seen})
	s.AppendTraceroute(mesh.TracerouteRecord{From: "1a2b3c4d", To: "aabbccdd", Timestamp: seen})
	return s.Snapshot()
}

func TestExportDeterministic(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, zap.NewNop())
	snap := testSnapshot()

	require.NoError(t, e.Export("nodes.json", snap.Nodes))
	first, err := os.ReadFile(filepath.Join(dir, "nodes.json"))
	require.NoError(t, err)

	require.NoError(t, e.Export("nodes.json", snap.Nodes))
	second, err := os.ReadFile(filepath.Join(dir, "nodes.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "same input must yield byte-identical output")
}

func TestExportAtomicOnFailure(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, zap.NewNop())

	require.NoError(t, e.Export("out.json", map[string]int{"v": 1}))
	before, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)

	// Channels are not serializable; the export must fail without
	// touching the final file.
	err = e.Export("out.json", map[string]any{"v": make(chan int)})
	require.Error(t, err)

	after, readErr := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, readErr)
	assert.Equal(t, before, after, "failed export must leave the prior file intact")
}

func TestExportLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, zap.NewNop())
	require.NoError(t, e.Export("out.json", map[string]int{"v": 1}))

	_, err := os.Stat(filepath.Join(dir, "out.json.swp"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportAllWritesEverySlice(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, zap.NewNop())

	require.NoError(t, e.ExportAll(testSnapshot()))

	for _, name := range []string{"chat.json", "nodes.json", "telemetry.json", "traceroutes.json"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}
}

func TestExportAllChatShape(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, zap.NewNop())
	require.NoError(t, e.ExportAll(testSnapshot()))

	body, err := os.ReadFile(filepath.Join(dir, "chat.json"))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"channels"`)
	assert.Contains(t, string(body), `"0"`)
	assert.Contains(t, string(body), `"hello"`)
}
