// Package render builds per-page view models from a Store snapshot and
// hands them to a pluggable page renderer.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// PageRenderer turns a named page's view model into output bytes. The
// concrete templating mechanism sits behind this boundary.
type PageRenderer interface {
	Render(page string, view any) ([]byte, error)
}

// PageResult is the outcome of one page build in a render pass.
type PageResult struct {
	Page string
	Err  error
}

// Projector builds and writes every output page.
type Projector struct {
	renderer     PageRenderer
	outDir       string
	serverNodeID mesh.NodeID
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

// NewProjector creates a Projector writing pages into outDir.
// serverNodeID names the geolocated host node distances are measured
// from; it may be absent from the Store.
func NewProjector(renderer PageRenderer, outDir string, serverNodeID mesh.NodeID, loc *time.Location, logger *zap.Logger) *Projector {
	return &Projector{
		renderer:     renderer,
		outDir:       outDir,
		serverNodeID: serverNodeID,
		loc:          loc,
		now:          time.Now,
		logger:       logger,
	}
}

// SetNow overrides the clock.
func (p *Projector) SetNow(now func() time.Time) {
	p.now = now
}

// RenderAll runs every page builder in its fixed order. A failing page
// is logged and reported in the batch result, and the remaining pages
// still render; one broken page never blocks the rest of the site.
func (p *Projector) RenderAll(snap *mesh.Snapshot) []PageResult {
	builders := []struct {
		page  string
		build func(*mesh.Snapshot) (any, error)
	}{
		{"index", p.indexView},
		{"chat", p.chatView},
		{"graph", p.graphView},
		{"map", p.mapView},
		{"mesh_log", p.meshLogView},
		{"mqtt_log", p.mqttLogView},
		{"neighbors", p.neighborsView},
		{"nodes", p.nodesView},
		{"routes", p.routesView},
		{"stats", p.statsView},
		{"telemetry", p.telemetryView},
		{"traceroutes", p.traceroutesView},
	}

	var results []PageResult
	for _, b := range builders {
		err := p.renderPage(b.page, b.build, snap)
		if err != nil {
			p.logger.Error("Page render failed",
				zap.String("page", b.page),
				zap.Error(err),
			)
		}
		results = append(results, PageResult{Page: b.page, Err: err})
	}

	// One page per node, isolated the same way.
	results = append(results, p.renderNodePages(snap)...)
	return results
}

func (p *Projector) renderPage(page string, build func(*mesh.Snapshot) (any, error), snap *mesh.Snapshot) error {
	view, err := build(snap)
	if err != nil {
		return err
	}
	return p.write(page, view)
}

// renderNodePages renders node_<id>.html for every node in the set.
func (p *Projector) renderNodePages(snap *mesh.Snapshot) []PageResult {
	now := p.now()
	var results []PageResult
	for _, n := range snap.OrderedNodes() {
		page := fmt.Sprintf("node_%s", n.ID)
		view := nodePage{
			Node:  p.serializeNode(snap, n, now, false),
			Nodes: snap.Nodes,
		}
		err := p.write(page, view)
		if err != nil {
			p.logger.Error("Page render failed",
				zap.String("page", page),
				zap.Error(err),
			)
		}
		results = append(results, PageResult{Page: page, Err: err})
	}
	return results
}

// write renders a view and overwrites the page file. Pages have no
// atomicity requirement; the last successful write stays on disk.
func (p *Projector) write(page string, view any) error {
	body, err := p.renderer.Render(page, view)
	if err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	path := filepath.Join(p.outDir, page+".html")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// --- view models ---

type indexPage struct {
	Nodes       map[mesh.NodeID]*mesh.Node
	ActiveNodes []*mesh.Node
}

type chatPage struct {
	Nodes map[mesh.NodeID]*mesh.Node
	Chat  map[string][]mesh.ChatMessage
}

// GraphEdge is one neighbor adjacency for the graph page.
type GraphEdge struct {
	From mesh.NodeID
	To   mesh.NodeID
	SNR  float64
}

type graphPage struct {
	Nodes map[mesh.NodeID]*mesh.Node
	Edges []GraphEdge
}

type mapPage struct {
	ServerNode *NodeView
	Nodes      []*NodeView
}

type meshLogPage struct {
	Messages []mesh.MeshMessage
}

type mqttLogPage struct {
	Messages    []mesh.MQTTMessage
	ConnectedAt time.Time
}

type neighborsPage struct {
	Nodes       map[mesh.NodeID]*mesh.Node
	ActiveNodes map[mesh.NodeID]*NodeView
}

type nodesPage struct {
	Nodes       map[mesh.NodeID]*mesh.Node
	ActiveNodes map[mesh.NodeID]*NodeView
}

type nodePage struct {
	Node  *NodeView
	Nodes map[mesh.NodeID]*mesh.Node
}

type routesPage struct {
	Nodes       map[mesh.NodeID]*mesh.Node
	Traceroutes []mesh.TracerouteRecord
}

// Stats is the aggregate counters view.
type Stats struct {
	ActiveNodes       int `json:"active_nodes"`
	TotalChat         int `json:"total_chat"`
	TotalNodes        int `json:"total_nodes"`
	TotalMessages     int `json:"total_messages"`
	TotalMQTTMessages int `json:"total_mqtt_messages"`
	TotalTelemetry    int `json:"total_telemetry"`
	TotalTraceroutes  int `json:"total_traceroutes"`
}

type statsPage struct {
	Stats Stats
	Nodes map[mesh.NodeID]*mesh.Node
}

type telemetryPage struct {
	Nodes     map[mesh.NodeID]*mesh.Node
	Telemetry []mesh.TelemetryRecord
}

type traceroutesPage struct {
	Nodes       map[mesh.NodeID]*mesh.Node
	Traceroutes []mesh.TracerouteRecord
}

// --- builders ---

func (p *Projector) indexView(snap *mesh.Snapshot) (any, error) {
	return indexPage{Nodes: snap.Nodes, ActiveNodes: snap.ActiveNodes()}, nil
}

func (p *Projector) chatView(snap *mesh.Snapshot) (any, error) {
	return chatPage{Nodes: snap.Nodes, Chat: snap.Chat}, nil
}

func (p *Projector) graphView(snap *mesh.Snapshot) (any, error) {
	var edges []GraphEdge
	for _, n := range snap.OrderedNodes() {
		if n.NeighborInfo == nil {
			continue
		}
		for _, nb := range n.NeighborInfo.Neighbors {
			edges = append(edges, GraphEdge{From: n.ID, To: nb.NodeID, SNR: nb.SNR})
		}
	}
	return graphPage{Nodes: snap.Nodes, Edges: edges}, nil
}

func (p *Projector) mapView(snap *mesh.Snapshot) (any, error) {
	server, ok := snap.Nodes[p.serverNodeID]
	if !ok {
		return nil, fmt.Errorf("server node %s not in store", p.serverNodeID)
	}
	now := p.now()
	views := make([]*NodeView, 0, len(snap.Nodes))
	for _, n := range snap.OrderedNodes() {
		if n.Position.HasFix() {
			views = append(views, p.serializeNode(snap, n, now, true))
		}
	}
	return mapPage{ServerNode: p.serializeNode(snap, server, now, true), Nodes: views}, nil
}

func (p *Projector) meshLogView(snap *mesh.Snapshot) (any, error) {
	return meshLogPage{Messages: snap.Messages}, nil
}

func (p *Projector) mqttLogView(snap *mesh.Snapshot) (any, error) {
	return mqttLogPage{Messages: snap.MQTT, ConnectedAt: snap.ConnectedAt}, nil
}

func (p *Projector) neighborsView(snap *mesh.Snapshot) (any, error) {
	now := p.now()
	active := make(map[mesh.NodeID]*NodeView)
	for _, n := range snap.OrderedNodes() {
		if n.Active && n.NeighborInfo != nil && len(n.NeighborInfo.Neighbors) > 0 {
			active[n.ID] = p.serializeNode(snap, n, now, true)
		}
	}
	return neighborsPage{Nodes: snap.Nodes, ActiveNodes: active}, nil
}

func (p *Projector) nodesView(snap *mesh.Snapshot) (any, error) {
	now := p.now()
	active := make(map[mesh.NodeID]*NodeView)
	for _, n := range snap.OrderedNodes() {
		if n.Active {
			active[n.ID] = p.serializeNode(snap, n, now, true)
		}
	}
	return nodesPage{Nodes: snap.Nodes, ActiveNodes: active}, nil
}

func (p *Projector) routesView(snap *mesh.Snapshot) (any, error) {
	return routesPage{Nodes: snap.Nodes, Traceroutes: snap.Traceroutes}, nil
}

func (p *Projector) statsView(snap *mesh.Snapshot) (any, error) {
	return statsPage{Stats: BuildStats(snap), Nodes: snap.Nodes}, nil
}

func (p *Projector) telemetryView(snap *mesh.Snapshot) (any, error) {
	return telemetryPage{Nodes: snap.Nodes, Telemetry: snap.Telemetry}, nil
}

func (p *Projector) traceroutesView(snap *mesh.Snapshot) (any, error) {
	return traceroutesPage{Nodes: snap.Nodes, Traceroutes: snap.Traceroutes}, nil
}

// BuildStats exposes the aggregate counters for callers outside the
// render pass, such as the HTTP API.
func BuildStats(snap *mesh.Snapshot) Stats {
	stats := Stats{
		TotalChat:         len(snap.Chat[mesh.PrimaryChannel]),
		TotalNodes:        len(snap.Nodes),
		TotalMessages:     len(snap.Messages),
		TotalMQTTMessages: len(snap.MQTT),
		TotalTelemetry:    len(snap.Telemetry),
		TotalTraceroutes:  len(snap.Traceroutes),
	}
	for _, n := range snap.Nodes {
		if n.Active {
			stats.ActiveNodes++
		}
	}
	return stats
}
