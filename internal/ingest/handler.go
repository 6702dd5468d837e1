package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// FrameArchiver persists raw frames durably. Satisfied by
// archive.Archive; optional.
type FrameArchiver interface {
	Put(topic string, payload []byte, received time.Time) error
}

// Handler applies decoded packets to the Store. It is the Store's only
// writer and runs synchronously on the dispatch path, so mutations
// never interleave.
type Handler struct {
	store    *mesh.Store
	archiver FrameArchiver
	logger   *zap.Logger
}

// NewHandler creates a Handler writing into store.
func NewHandler(store *mesh.Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// SetArchiver enables durable raw-frame archiving.
func (h *Handler) SetArchiver(a FrameArchiver) {
	h.archiver = a
}

// Handle records the delivery and applies the packet to the Store.
func (h *Handler) Handle(pkt *mesh.Packet, f Frame) {
	h.store.AppendMQTTMessage(mesh.MQTTMessage{
		Topic:    f.Topic,
		Size:     len(f.Payload),
		Received: f.Received,
	})
	if h.archiver != nil {
		if err := h.archiver.Put(f.Topic, f.Payload, f.Received); err != nil {
			// Archive failure never stops ingestion.
			h.logger.Warn("Frame archive write failed", zap.Error(err))
		}
	}

	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = f.Received
	}
	from := logID(pkt.From)

	h.store.AppendMeshMessage(mesh.MeshMessage{
		From:      from,
		Type:      pkt.Kind.String(),
		Summary:   pkt.Text,
		Timestamp: ts,
	})
	// Any packet referencing a node bumps its last-seen time.
	h.store.UpsertNode(pkt.From, mesh.NodeFields{LastSeen: ts})

	switch pkt.Kind {
	case mesh.PacketNodeInfo:
		h.store.UpsertNode(pkt.From, mesh.NodeFields{
			ShortName: pkt.ShortName,
			LongName:  pkt.LongName,
			Hardware:  pkt.Hardware,
			Role:      pkt.Role,
			LastSeen:  ts,
		})
		h.store.SortNodesByShortName()
	case mesh.PacketPosition:
		h.store.UpsertNode(pkt.From, mesh.NodeFields{Position: pkt.Position, LastSeen: ts})
	case mesh.PacketMessage:
		h.store.AppendChat(mesh.ChatMessage{
			From:      from,
			To:        logID(pkt.To),
			Channel:   pkt.Channel,
			Text:      pkt.Text,
			Timestamp: ts,
		})
	case mesh.PacketTelemetry:
		h.store.UpsertNode(pkt.From, mesh.NodeFields{Telemetry: pkt.Telemetry, LastSeen: ts})
		h.store.AppendTelemetry(mesh.TelemetryRecord{From: from, Payload: pkt.Telemetry, Timestamp: ts})
	case mesh.PacketTraceroute:
		h.store.AppendTraceroute(mesh.TracerouteRecord{
			From:      from,
			To:        logID(pkt.To),
			Route:     pkt.Route,
			Timestamp: ts,
		})
	case mesh.PacketNeighborInfo:
		h.store.UpsertNode(pkt.From, mesh.NodeFields{
			NeighborInfo: &mesh.NeighborInfo{Neighbors: pkt.Neighbors},
			LastSeen:     ts,
		})
	}
}

// logID canonicalizes an id for the event logs. Unlike the node set,
// logs keep malformed ids as-is so the raw history stays inspectable.
func logID(raw string) mesh.NodeID {
	if id, ok := mesh.CanonicalID(raw); ok {
		return id
	}
	return mesh.NodeID(raw)
}
