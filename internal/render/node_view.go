package render

import (
	"time"

	"github.com/Travis-L-R/meshinfo/internal/geo"
	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// NodeView is the serialized shape of one node for page rendering.
type NodeView struct {
	ID            string            `json:"id"`
	ShortName     string            `json:"shortname"`
	LongName      string            `json:"longname"`
	Hardware      string            `json:"hardware"`
	Role          string            `json:"role,omitempty"`
	Position      *PositionView     `json:"position"`
	NeighborInfo  *NeighborInfoView `json:"neighborinfo"`
	Telemetry     map[string]any    `json:"telemetry"`
	LastSeen      time.Time         `json:"last_seen"`
	LastSeenHuman string            `json:"last_seen_human"`
	Since         time.Duration     `json:"since"`

	// Omitted (not zero) when either endpoint has no position fix.
	DistanceFromHost *float64 `json:"distance_from_host_node,omitempty"`

	// Raw attributes overlaid in full mode only.
	Active *bool `json:"active,omitempty"`
}

// PositionView augments the fixed-point coordinates with their degree
// values for display.
type PositionView struct {
	LatitudeI  int32   `json:"latitude_i"`
	LongitudeI int32   `json:"longitude_i"`
	Altitude   int32   `json:"altitude,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// NeighborInfoView is a node's neighbor table with resolved ids and
// computed distances.
type NeighborInfoView struct {
	Neighbors []NeighborView `json:"neighbors"`
}

// NeighborView is one neighbor entry; Distance is present only when
// both endpoints have a position fix.
type NeighborView struct {
	NodeID   mesh.NodeID `json:"node_id"`
	SNR      float64     `json:"snr"`
	Distance *float64    `json:"distance,omitempty"`
}

// serializeNode builds the view model for one node. In simplified mode
// only the computed shape is returned; in full mode the remaining raw
// attributes are overlaid, raw values surviving only where the computed
// shape does not replace them.
func (p *Projector) serializeNode(snap *mesh.Snapshot, n *mesh.Node, now time.Time, simplified bool) *NodeView {
	view := &NodeView{
		ID:            string(n.ID),
		ShortName:     n.ShortName,
		LongName:      n.LongName,
		Hardware:      n.Hardware,
		Role:          n.Role,
		Position:      positionView(n.Position),
		NeighborInfo:  p.serializeNeighbors(snap, n),
		Telemetry:     n.Telemetry,
		LastSeen:      n.LastSeen,
		LastSeenHuman: n.LastSeen.In(p.loc).Format(time.RFC3339),
		Since:         now.Sub(n.LastSeen),
	}

	if host, ok := snap.Nodes[p.serverNodeID]; ok {
		if host.Position.HasFix() && n.Position.HasFix() {
			hostLat, hostLon := host.Position.Degrees()
			lat, lon := n.Position.Degrees()
			if km, ok := geo.Between(lat, lon, hostLat, hostLon); ok {
				rounded := geo.RoundKm(km)
				view.DistanceFromHost = &rounded
			}
		}
	}

	if !simplified {
		active := n.Active
		view.Active = &active
	}
	return view
}

// serializeNeighbors resolves a node's neighbor entries against the
// snapshot and attaches distances where both sides have a fix.
func (p *Projector) serializeNeighbors(snap *mesh.Snapshot, n *mesh.Node) *NeighborInfoView {
	if n.NeighborInfo == nil {
		return nil
	}
	view := &NeighborInfoView{Neighbors: make([]NeighborView, 0, len(n.NeighborInfo.Neighbors))}
	for _, nb := range n.NeighborInfo.Neighbors {
		nv := NeighborView{NodeID: nb.NodeID, SNR: nb.SNR}
		if other, ok := snap.Nodes[nb.NodeID]; ok {
			if n.Position.HasFix() && other.Position.HasFix() {
				lat1, lon1 := n.Position.Degrees()
				lat2, lon2 := other.Position.Degrees()
				if km, ok := geo.Between(lat1, lon1, lat2, lon2); ok {
					rounded := geo.RoundKm(km)
					nv.Distance = &rounded
				}
			}
		}
		view.Neighbors = append(view.Neighbors, nv)
	}
	return view
}

func positionView(p *mesh.Position) *PositionView {
	if p == nil {
		return nil
	}
	lat, lon := p.Degrees()
	return &PositionView{
		LatitudeI:  p.LatitudeI,
		LongitudeI: p.LongitudeI,
		Altitude:   p.Altitude,
		Latitude:   lat,
		Longitude:  lon,
	}
}
