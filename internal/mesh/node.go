// Package mesh holds the in-memory model of the mesh network: nodes,
// chat, telemetry, traceroutes, and the message logs, plus the Store
// that owns them.
package mesh

import (
	"fmt"
	"strings"
	"time"
)

// NodeID is the canonical mesh node address: exactly 8 lowercase hex
// characters, with the leading '!' sigil stripped.
type NodeID string

// CanonicalID normalizes a raw node id. It strips one leading '!' sigil
// and lowercases the rest. The second return value is false when the
// result is not exactly 8 hex characters; such ids never enter the
// queryable node set.
func CanonicalID(raw string) (NodeID, bool) {
	s := strings.ToLower(strings.TrimPrefix(raw, "!"))
	if len(s) != 8 {
		return "", false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", false
		}
	}
	return NodeID(s), true
}

// NodeIDFromInt converts a numeric mesh address to its canonical hex id.
func NodeIDFromInt(n uint32) NodeID {
	return NodeID(fmt.Sprintf("%08x", n))
}

// Position is a node's reported location in fixed-point 1e-7 degrees.
type Position struct {
	LatitudeI  int32 `json:"latitude_i"`
	LongitudeI int32 `json:"longitude_i"`
	Altitude   int32 `json:"altitude,omitempty"`
}

// Degrees returns the position as floating-point latitude/longitude.
func (p *Position) Degrees() (lat, lon float64) {
	return float64(p.LatitudeI) / 1e7, float64(p.LongitudeI) / 1e7
}

// HasFix reports whether the position carries a real fix. A zero
// integer coordinate on either axis means "no fix", not the equator or
// prime meridian.
func (p *Position) HasFix() bool {
	return p != nil && p.LatitudeI != 0 && p.LongitudeI != 0
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Neighbor is one entry of a node's locally observed adjacency list.
type Neighbor struct {
	NodeID NodeID  `json:"node_id"`
	SNR    float64 `json:"snr"`
}

// NeighborInfo is a node's neighbor table as last reported.
type NeighborInfo struct {
	Neighbors []Neighbor `json:"neighbors"`
}

// Clone returns a deep copy.
func (ni *NeighborInfo) Clone() *NeighborInfo {
	if ni == nil {
		return nil
	}
	cp := &NeighborInfo{Neighbors: make([]Neighbor, len(ni.Neighbors))}
	copy(cp.Neighbors, ni.Neighbors)
	return cp
}

// Node is one mesh device. Created on the first packet referencing its
// id, updated in place afterwards, never deleted.
type Node struct {
	ID           NodeID         `json:"id"`
	ShortName    string         `json:"shortname"`
	LongName     string         `json:"longname"`
	Hardware     string         `json:"hardware"`
	Role         string         `json:"role,omitempty"`
	Position     *Position      `json:"position"`
	NeighborInfo *NeighborInfo  `json:"neighborinfo"`
	Telemetry    map[string]any `json:"telemetry"`
	LastSeen     time.Time      `json:"last_seen"`
	Active       bool           `json:"active"`
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	cp := *n
	cp.Position = n.Position.Clone()
	cp.NeighborInfo = n.NeighborInfo.Clone()
	if n.Telemetry != nil {
		cp.Telemetry = make(map[string]any, len(n.Telemetry))
		for k, v := range n.Telemetry {
			cp.Telemetry[k] = v
		}
	}
	return &cp
}
