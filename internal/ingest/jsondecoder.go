package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
)

// JSONDecoder decodes the JSON envelope published by mesh gateways in
// JSON mode. It is the default Decoder; other decoders can be swapped
// in behind the same interface.
type JSONDecoder struct{}

type jsonEnvelope struct {
	From      uint32          `json:"from"`
	To        uint32          `json:"to"`
	Channel   int             `json:"channel"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode parses one gateway envelope into a typed packet.
func (JSONDecoder) Decode(f Frame) (*mesh.Packet, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(f.Payload, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if env.From == 0 {
		return nil, fmt.Errorf("envelope: missing sender address")
	}

	pkt := &mesh.Packet{
		From:    string(mesh.NodeIDFromInt(env.From)),
		To:      string(mesh.NodeIDFromInt(env.To)),
		Channel: strconv.Itoa(env.Channel),
	}
	if env.Timestamp > 0 {
		pkt.Timestamp = time.Unix(env.Timestamp, 0).UTC()
	}

	switch env.Type {
	case "text":
		pkt.Kind = mesh.PacketMessage
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("text payload: %w", err)
		}
		pkt.Text = p.Text
	case "position":
		pkt.Kind = mesh.PacketPosition
		var p mesh.Position
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("position payload: %w", err)
		}
		pkt.Position = &p
	case "nodeinfo":
		pkt.Kind = mesh.PacketNodeInfo
		var p struct {
			ID        string `json:"id"`
			ShortName string `json:"shortname"`
			LongName  string `json:"longname"`
			Hardware  any    `json:"hardware"`
			Role      any    `json:"role"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("nodeinfo payload: %w", err)
		}
		if p.ID != "" {
			pkt.From = p.ID
		}
		pkt.ShortName = p.ShortName
		pkt.LongName = p.LongName
		pkt.Hardware = coerceTag(p.Hardware)
		pkt.Role = coerceTag(p.Role)
	case "telemetry":
		pkt.Kind = mesh.PacketTelemetry
		var p map[string]any
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("telemetry payload: %w", err)
		}
		pkt.Telemetry = p
	case "traceroute":
		pkt.Kind = mesh.PacketTraceroute
		var p struct {
			Route []uint32 `json:"route"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("traceroute payload: %w", err)
		}
		for _, hop := range p.Route {
			pkt.Route = append(pkt.Route, mesh.NodeIDFromInt(hop))
		}
	case "neighborinfo":
		pkt.Kind = mesh.PacketNeighborInfo
		var p struct {
			Neighbors []struct {
				NodeID uint32  `json:"node_id"`
				SNR    float64 `json:"snr"`
			} `json:"neighbors"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("neighborinfo payload: %w", err)
		}
		for _, n := range p.Neighbors {
			pkt.Neighbors = append(pkt.Neighbors, mesh.Neighbor{
				NodeID: mesh.NodeIDFromInt(n.NodeID),
				SNR:    n.SNR,
			})
		}
	default:
		pkt.Kind = mesh.PacketUnknown
	}

	return pkt, nil
}

// coerceTag renders a hardware/role value, which gateways publish as
// either a number or a string, as a display tag.
func coerceTag(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.Itoa(int(t))
	default:
		return fmt.Sprint(t)
	}
}
