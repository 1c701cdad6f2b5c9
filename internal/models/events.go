package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType identifies a signaling event. The set is closed: anything else is
// rejected at the transport boundary before it reaches the relay.
type EventType string

const (
	// Client to server.
	EventJoin           EventType = "join"
	EventOffer          EventType = "offer"
	EventAnswer         EventType = "answer"
	EventCandidate      EventType = "candidate"
	EventStartRecording EventType = "start_recording"
	EventLeave          EventType = "leave"

	// Server to client.
	EventConnected        EventType = "connected"
	EventRoomJoined       EventType = "room_joined"
	EventPeerJoined       EventType = "peer_joined"
	EventPeerLeft         EventType = "peer_left"
	EventPeerDisconnected EventType = "peer_disconnected"
	EventRecordingActive  EventType = "recording_active"
	EventError            EventType = "error"
)

// Slot is one of the two fixed roles a connection occupies within a room.
type Slot string

const (
	SlotInitiator   Slot = "initiator"
	SlotCounterpart Slot = "counterpart"
)

func (s Slot) Valid() bool {
	return s == SlotInitiator || s == SlotCounterpart
}

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	if s == SlotInitiator {
		return SlotCounterpart
	}
	return SlotInitiator
}

// Envelope is the wire form of every signaling event, inbound and outbound.
// SDP and Candidate are raw JSON: the relay forwards them verbatim and never
// looks inside.
type Envelope struct {
	Type        EventType       `json:"type"`
	RoomID      string          `json:"roomId,omitempty"`
	Slot        Slot            `json:"slot,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`

	// Outbound-only fields.
	ConnectionID    string `json:"connectionId,omitempty"`
	RecordingActive *bool  `json:"recordingActive,omitempty"`
	PeerSlot        Slot   `json:"peerSlot,omitempty"`
	PeerDisplayName string `json:"peerDisplayName,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ParseEnvelope decodes and validates an inbound event. Unknown fields and
// unknown event types are rejected so malformed events fail at the boundary
// instead of causing partial processing.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev Envelope
	if err := dec.Decode(&ev); err != nil {
		return Envelope{}, err
	}
	if err := ev.Validate(); err != nil {
		return Envelope{}, err
	}
	return ev, nil
}

// Validate checks an inbound envelope against its event type.
func (e Envelope) Validate() error {
	if e.ConnectionID != "" || e.RecordingActive != nil || e.PeerSlot != "" || e.PeerDisplayName != "" || e.Message != "" {
		return fmt.Errorf("%q event carries server-only fields", e.Type)
	}

	switch e.Type {
	case EventJoin:
		if e.RoomID == "" {
			return fmt.Errorf("join event missing roomId")
		}
		if !e.Slot.Valid() {
			return fmt.Errorf("join event has invalid slot %q", e.Slot)
		}
		if len(e.SDP) > 0 || len(e.Candidate) > 0 {
			return fmt.Errorf("join event has unexpected payload")
		}
	case EventOffer, EventAnswer:
		if e.RoomID == "" {
			return fmt.Errorf("%s event missing roomId", e.Type)
		}
		if len(e.SDP) == 0 {
			return fmt.Errorf("%s event missing sdp", e.Type)
		}
		if len(e.Candidate) > 0 || e.Slot != "" || e.DisplayName != "" {
			return fmt.Errorf("%s event has unexpected fields", e.Type)
		}
	case EventCandidate:
		if e.RoomID == "" {
			return fmt.Errorf("candidate event missing roomId")
		}
		if len(e.Candidate) == 0 {
			return fmt.Errorf("candidate event missing candidate")
		}
		if len(e.SDP) > 0 || e.Slot != "" || e.DisplayName != "" {
			return fmt.Errorf("candidate event has unexpected fields")
		}
	case EventStartRecording, EventLeave:
		if e.RoomID == "" {
			return fmt.Errorf("%s event missing roomId", e.Type)
		}
		if len(e.SDP) > 0 || len(e.Candidate) > 0 || e.Slot != "" || e.DisplayName != "" {
			return fmt.Errorf("%s event has unexpected fields", e.Type)
		}
	default:
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
	return nil
}

// Outbound constructors.

func Connected(connectionID string) Envelope {
	return Envelope{Type: EventConnected, ConnectionID: connectionID}
}

func RoomJoined(roomID string, slot Slot, recordingActive bool) Envelope {
	return Envelope{Type: EventRoomJoined, RoomID: roomID, Slot: slot, RecordingActive: &recordingActive}
}

func PeerJoined(peerSlot Slot, peerDisplayName string) Envelope {
	return Envelope{Type: EventPeerJoined, PeerSlot: peerSlot, PeerDisplayName: peerDisplayName}
}

func PeerLeft() Envelope {
	return Envelope{Type: EventPeerLeft}
}

func PeerDisconnected() Envelope {
	return Envelope{Type: EventPeerDisconnected}
}

func RecordingActive() Envelope {
	return Envelope{Type: EventRecordingActive}
}

func ErrorEvent(message string) Envelope {
	return Envelope{Type: EventError, Message: message}
}

// ForwardSDP wraps an offer or answer payload for the counterpart.
func ForwardSDP(kind EventType, sdp json.RawMessage) Envelope {
	return Envelope{Type: kind, SDP: sdp}
}

// ForwardCandidate wraps a connectivity candidate for the counterpart.
func ForwardCandidate(candidate json.RawMessage) Envelope {
	return Envelope{Type: EventCandidate, Candidate: candidate}
}
