// Package realtime defines the socket protocol shared by the server hub and
// the client connection, and implements the client side of the single
// long-lived connection that is reused across room switches.
package realtime

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	// Outbound (client -> server).
	EventJoinRoom    EventType = "join_event_chat"
	EventLeaveRoom   EventType = "leave_room"
	EventSendMessage EventType = "send_message"
	// Inbound (server -> client).
	EventReceiveMessage EventType = "receive_message"
	EventError          EventType = "error"
)

// Envelope is one socket frame. Data is kept raw so each side decodes only
// the payloads it handles.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a frame.
func NewEnvelope(event EventType, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame's payload into out.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s payload: empty data", e.Event)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// RoomPayload accompanies join_event_chat and leave_room.
type RoomPayload struct {
	EventID int `json:"event_id"`
}

// SendPayload accompanies send_message.
type SendPayload struct {
	EventID int    `json:"event_id"`
	Message string `json:"message"`
}

// ErrorPayload accompanies error frames.
type ErrorPayload struct {
	Message string `json:"message"`
}
