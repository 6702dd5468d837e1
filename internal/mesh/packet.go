package mesh

import "time"

// PacketKind discriminates the decoded packet variants.
type PacketKind int

const (
	PacketUnknown PacketKind = iota
	PacketNodeInfo
	PacketPosition
	PacketMessage
	PacketTelemetry
	PacketTraceroute
	PacketNeighborInfo
)

func (k PacketKind) String() string {
	switch k {
	case PacketNodeInfo:
		return "nodeinfo"
	case PacketPosition:
		return "position"
	case PacketMessage:
		return "text"
	case PacketTelemetry:
		return "telemetry"
	case PacketTraceroute:
		return "traceroute"
	case PacketNeighborInfo:
		return "neighborinfo"
	default:
		return "unknown"
	}
}

// Packet is one decoded mesh packet as produced by a Decoder. From and
// To are raw wire ids; they may still carry the '!' sigil and are
// canonicalized by the Store.
type Packet struct {
	Kind    PacketKind
	From    string
	To      string
	Channel string

	// PacketNodeInfo
	ShortName string
	LongName  string
	Hardware  string
	Role      string

	// PacketPosition
	Position *Position

	// PacketMessage
	Text string

	// PacketTelemetry
	Telemetry map[string]any

	// PacketTraceroute
	Route []NodeID

	// PacketNeighborInfo
	Neighbors []Neighbor

	Timestamp time.Time
}
