package models

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// EventTag discriminates the payload carried by an Envelope.
type EventTag string

const (
	EventConnected      EventTag = "connected"
	EventPositionUpdate EventTag = "position_update"
	EventDisconnected   EventTag = "disconnected"
	EventReconnected    EventTag = "reconnected"
)

// Position is a single robot position as reported by the tracker.
// Timestamp is producer-supplied epoch milliseconds.
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

// ConnectionAck is the first payload every new session receives.
type ConnectionAck struct {
	Message string `json:"message"`
}

// Notice is a free-form control payload.
type Notice map[string]string

// Payload is implemented by every type an Envelope may carry.
type Payload interface {
	payloadTag() EventTag
}

func (Position) payloadTag() EventTag      { return EventPositionUpdate }
func (ConnectionAck) payloadTag() EventTag { return EventConnected }
func (Notice) payloadTag() EventTag        { return "" }

// Envelope is the message sent to downstream sessions. Event is always
// serialized so receivers can discriminate Data without a schema.
type Envelope struct {
	Event EventTag `json:"event"`
	Data  Payload  `json:"data"`
}

func NewPositionUpdate(p Position) Envelope {
	return Envelope{Event: EventPositionUpdate, Data: p}
}

func NewConnectionAck(message string) Envelope {
	return Envelope{Event: EventConnected, Data: ConnectionAck{Message: message}}
}

// NewNotice builds a control envelope. Tags reserved for typed payloads are rejected.
func NewNotice(tag EventTag, data Notice) (Envelope, error) {
	switch tag {
	case "":
		return Envelope{}, fmt.Errorf("notice tag is empty")
	case EventPositionUpdate, EventConnected:
		return Envelope{}, fmt.Errorf("tag %q carries a typed payload", tag)
	}
	return Envelope{Event: tag, Data: data}, nil
}

// Encode serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	if e.Event == "" {
		return nil, fmt.Errorf("envelope has no event tag")
	}
	if e.Data != nil {
		if want := e.Data.payloadTag(); want != "" && want != e.Event {
			return nil, fmt.Errorf("payload %T does not match event %q", e.Data, e.Event)
		}
	}
	b, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses a serialized envelope, choosing the payload type by tag.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var raw struct {
		Event EventTag        `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(b, &raw); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if raw.Event == "" {
		return Envelope{}, fmt.Errorf("envelope has no event tag")
	}

	env := Envelope{Event: raw.Event}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return env, nil
	}

	var err error
	switch raw.Event {
	case EventPositionUpdate:
		var p Position
		err = sonic.Unmarshal(raw.Data, &p)
		env.Data = p
	case EventConnected:
		var ack ConnectionAck
		err = sonic.Unmarshal(raw.Data, &ack)
		env.Data = ack
	default:
		var n Notice
		err = sonic.Unmarshal(raw.Data, &n)
		env.Data = n
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal %q payload: %w", raw.Event, err)
	}
	return env, nil
}
