package mesh

import (
	"sort"
	"sync"
	"time"
)

// PrimaryChannel is the chat channel that is always present.
const PrimaryChannel = "0"

// Store holds the canonical in-memory mesh state. The ingestion
// handler is its only writer; exporters and renderers read through
// Snapshot, which copies under the read lock so they never observe a
// partial mutation.
type Store struct {
	mu          sync.RWMutex
	nodes       map[NodeID]*Node
	order       []NodeID // node iteration order, insertion then sorted on demand
	chat        map[string][]ChatMessage
	telemetry   []TelemetryRecord
	traceroutes []TracerouteRecord
	messages    []MeshMessage
	mqtt        []MQTTMessage
	connectedAt time.Time
}

// NewStore creates an empty Store with the primary chat channel
// already materialized.
func NewStore() *Store {
	return &Store{
		nodes: make(map[NodeID]*Node),
		chat:  map[string][]ChatMessage{PrimaryChannel: {}},
	}
}

// NodeFields carries the attributes an upsert merges into a node.
// Zero-valued fields are left untouched on existing nodes.
type NodeFields struct {
	ShortName    string
	LongName     string
	Hardware     string
	Role         string
	Position     *Position
	NeighborInfo *NeighborInfo
	Telemetry    map[string]any
	LastSeen     time.Time
}

// UpsertNode merges fields into the node keyed by the canonicalized id,
// creating it on first sight. Malformed ids are silently dropped and
// never fail the pipeline; the return value reports whether the id was
// accepted.
func (s *Store) UpsertNode(raw string, f NodeFields) bool {
	id, ok := CanonicalID(raw)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.nodes[id]
	if !exists {
		n = &Node{ID: id}
		s.nodes[id] = n
		s.order = append(s.order, id)
	}
	if f.ShortName != "" {
		n.ShortName = f.ShortName
	}
	if f.LongName != "" {
		n.LongName = f.LongName
	}
	if f.Hardware != "" {
		n.Hardware = f.Hardware
	}
	if f.Role != "" {
		n.Role = f.Role
	}
	if f.Position != nil {
		n.Position = f.Position.Clone()
	}
	if f.NeighborInfo != nil {
		n.NeighborInfo = f.NeighborInfo.Clone()
	}
	if f.Telemetry != nil {
		if n.Telemetry == nil {
			n.Telemetry = make(map[string]any, len(f.Telemetry))
		}
		for k, v := range f.Telemetry {
			n.Telemetry[k] = v
		}
	}
	if !f.LastSeen.IsZero() {
		n.LastSeen = f.LastSeen
	}
	return true
}

// Node returns a copy of the node with the given canonical id.
func (s *Store) Node(id NodeID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// NodeCount returns the number of materialized nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// AppendChat appends a chat message, preserving arrival order. An
// empty channel lands on the primary channel.
func (s *Store) AppendChat(msg ChatMessage) {
	if msg.Channel == "" {
		msg.Channel = PrimaryChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[msg.Channel] = append(s.chat[msg.Channel], msg)
}

// AppendTelemetry appends a telemetry record.
func (s *Store) AppendTelemetry(rec TelemetryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = append(s.telemetry, rec)
}

// AppendTraceroute appends a traceroute record.
func (s *Store) AppendTraceroute(rec TracerouteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceroutes = append(s.traceroutes, rec)
}

// AppendMeshMessage appends a decoded mesh packet record.
func (s *Store) AppendMeshMessage(msg MeshMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// AppendMQTTMessage appends a raw broker delivery record.
func (s *Store) AppendMQTTMessage(msg MQTTMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mqtt = append(s.mqtt, msg)
}

// SetConnectedAt records the most recent successful broker connection.
// Overwritten on every reconnect; display-only.
func (s *Store) SetConnectedAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedAt = t
}

// SortNodesByShortName reorders node iteration alphabetically by short
// name for display stability.
func (s *Store) SortNodesByShortName() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.nodes[s.order[i]].ShortName < s.nodes[s.order[j]].ShortName
	})
}

// MarkActive flags every node seen within the window as active and the
// rest as inactive.
func (s *Store) MarkActive(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		n.Active = !n.LastSeen.IsZero() && now.Sub(n.LastSeen) <= window
	}
}

// Snapshot is a consistent deep copy of the Store, safe to read while
// ingestion keeps mutating the original.
type Snapshot struct {
	Nodes       map[NodeID]*Node
	Order       []NodeID
	Chat        map[string][]ChatMessage
	Telemetry   []TelemetryRecord
	Traceroutes []TracerouteRecord
	Messages    []MeshMessage
	MQTT        []MQTTMessage
	ConnectedAt time.Time
}

// Snapshot copies the whole Store under the read lock.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Nodes:       make(map[NodeID]*Node, len(s.nodes)),
		Order:       append([]NodeID(nil), s.order...),
		Chat:        make(map[string][]ChatMessage, len(s.chat)),
		Telemetry:   append([]TelemetryRecord(nil), s.telemetry...),
		Traceroutes: append([]TracerouteRecord(nil), s.traceroutes...),
		Messages:    append([]MeshMessage(nil), s.messages...),
		MQTT:        append([]MQTTMessage(nil), s.mqtt...),
		ConnectedAt: s.connectedAt,
	}
	for id, n := range s.nodes {
		snap.Nodes[id] = n.Clone()
	}
	for ch, msgs := range s.chat {
		snap.Chat[ch] = append([]ChatMessage(nil), msgs...)
	}
	return snap
}

// OrderedNodes returns the snapshot's nodes in iteration order.
func (snap *Snapshot) OrderedNodes() []*Node {
	nodes := make([]*Node, 0, len(snap.Order))
	for _, id := range snap.Order {
		if n, ok := snap.Nodes[id]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// ActiveNodes returns the snapshot's active nodes in iteration order.
func (snap *Snapshot) ActiveNodes() []*Node {
	var nodes []*Node
	for _, n := range snap.OrderedNodes() {
		if n.Active {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
