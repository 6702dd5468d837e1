package mesh

import "time"

// ChatMessage is one message on a chat channel. Channel "0" is the
// primary channel and always present in the chat log.
type ChatMessage struct {
	From      NodeID    `json:"from"`
	To        NodeID    `json:"to,omitempty"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryRecord is one telemetry report from a node.
type TelemetryRecord struct {
	From      NodeID         `json:"from"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// TracerouteRecord is one observed traceroute between two nodes.
type TracerouteRecord struct {
	From      NodeID    `json:"from"`
	To        NodeID    `json:"to"`
	Route     []NodeID  `json:"route"`
	Timestamp time.Time `json:"timestamp"`
}

// MeshMessage is one decoded mesh packet, kept for the mesh log page.
type MeshMessage struct {
	From      NodeID    `json:"from"`
	Type      string    `json:"type"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTMessage is one raw broker delivery, kept for the mqtt log page.
// The receipt timestamp is attached locally; the transport does not
// supply one.
type MQTTMessage struct {
	Topic    string    `json:"topic"`
	Size     int       `json:"size"`
	Received time.Time `json:"received"`
}
