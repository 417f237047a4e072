// Package notifications delivers realtime events over websockets, fans them
// out across instances through Redis, and sends mobile push through FCM.
package notifications

import (
	"encoding/json"
)

// Server to client event types.
const (
	EventSnapshot     = "snapshot"
	EventWaveCreated  = "wave_created"
	EventWaveUpdated  = "wave_updated"
	EventWaveDeleted  = "wave_deleted"
	EventNotification = "notification"
	EventAck          = "ack"
	EventRollback     = "rollback"
	EventError        = "error"
	EventDropped      = "messages_dropped"
)

var droppedNotice, _ = Event{Type: EventDropped, Payload: map[string]string{"reason": "buffer_full"}}.Encode()

// EventError is the error body of rollback and error events.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is the envelope of every message the server writes to a socket.
type Event struct {
	Type      string      `json:"type"`
	ClientRef string      `json:"client_ref,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     *EventError `json:"error,omitempty"`
}

// Encode marshals the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// RawEvent is Event with the payload left undecoded.
type RawEvent struct {
	Type      string          `json:"type"`
	ClientRef string          `json:"client_ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *EventError     `json:"error,omitempty"`
}

// DecodeEvent parses an encoded event without decoding its payload.
func DecodeEvent(data []byte) (RawEvent, error) {
	var ev RawEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// IsWaveEvent reports whether t carries a wave payload.
func IsWaveEvent(t string) bool {
	switch t {
	case EventWaveCreated, EventWaveUpdated, EventAck, EventRollback:
		return true
	}
	return false
}
