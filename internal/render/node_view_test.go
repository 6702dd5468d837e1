package render_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
	"github.com/Travis-L-R/meshinfo/internal/render"
)

// capturingRenderer records each page's view model so node
// serialization can be inspected through the public surface.
type capturingRenderer struct {
	views map[string]any
}

func (r *capturingRenderer) Render(page string, view any) ([]byte, error) {
	if r.views == nil {
		r.views = make(map[string]any)
	}
	r.views[page] = view
	return []byte("ok"), nil
}

func renderViews(t *testing.T, snap *mesh.Snapshot, serverID mesh.NodeID) map[string]any {
	t.Helper()
	rec := &capturingRenderer{}
	p := render.NewProjector(rec, t.TempDir(), serverID, time.UTC, zap.NewNop())
	p.SetNow(fixedNow)
	for _, res := range p.RenderAll(snap) {
		require.NoError(t, res.Err, res.Page)
	}
	return rec.views
}

func nodeViewFromPage(t *testing.T, views map[string]any, page string) *render.NodeView {
	t.Helper()
	raw, ok := views[page]
	require.True(t, ok, page)
	// The node page view embeds the serialized node under "Node".
	body, err := json.Marshal(raw)
	require.NoError(t, err)
	var decoded struct {
		Node *render.NodeView
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.NotNil(t, decoded.Node)
	return decoded.Node
}

func TestSerializedNodeDistanceFromHost(t *testing.T) {
	snap := buildSnapshot(t)
	views := renderViews(t, snap, "1a2b3c4d")

	remote := nodeViewFromPage(t, views, "node_aabbccdd")
	require.NotNil(t, remote.DistanceFromHost, "both endpoints have a fix")
	// SF to LA, roughly 559 km, rounded to 2 decimals.
	assert.InDelta(t, 559, *remote.DistanceFromHost, 5)

	host := nodeViewFromPage(t, views, "node_1a2b3c4d")
	require.NotNil(t, host.DistanceFromHost)
	assert.Equal(t, 0.0, *host.DistanceFromHost, "distance to self is zero, not omitted")
}

func TestSerializedNodeDistanceOmittedWithoutFix(t *testing.T) {
	snap := buildSnapshot(t)
	views := renderViews(t, snap, "1a2b3c4d")

	nofix := nodeViewFromPage(t, views, "node_00000099")
	assert.Nil(t, nofix.DistanceFromHost, "(0,0) means no fix; the field is omitted, not zero")
}

func TestSerializedNodeSince(t *testing.T) {
	snap := buildSnapshot(t)
	views := renderViews(t, snap, "1a2b3c4d")

	v := nodeViewFromPage(t, views, "node_aabbccdd")
	assert.Equal(t, 10*time.Minute, v.Since)
	assert.NotEmpty(t, v.LastSeenHuman)
}

func TestSerializedNeighborsDistance(t *testing.T) {
	snap := buildSnapshot(t)
	views := renderViews(t, snap, "1a2b3c4d")

	v := nodeViewFromPage(t, views, "node_aabbccdd")
	require.NotNil(t, v.NeighborInfo)
	require.Len(t, v.NeighborInfo.Neighbors, 1)
	nb := v.NeighborInfo.Neighbors[0]
	assert.Equal(t, mesh.NodeID("1a2b3c4d"), nb.NodeID)
	assert.Equal(t, 5.0, nb.SNR)
	require.NotNil(t, nb.Distance, "neighbor in store with fix gets a distance")
	assert.InDelta(t, 559, *nb.Distance, 5)
}

func TestFullModeCarriesActiveFlag(t *testing.T) {
	snap := buildSnapshot(t)
	views := renderViews(t, snap, "1a2b3c4d")

	// Per-node pages use full mode.
	v := nodeViewFromPage(t, views, "node_aabbccdd")
	require.NotNil(t, v.Active)
	assert.True(t, *v.Active)
}
