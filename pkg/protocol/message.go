// Package protocol defines the WebSocket message envelope used on /ws/status
// and /ws/gaze. Every frame is a JSON object {"type", "ts", "data"}.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → client messages
	TypeStatus   MessageType = "status"   // Controller status snapshot
	TypeDecision MessageType = "decision" // Debounced gaze decision
	TypeError    MessageType = "error"    // Rejected client message

	// Client → server messages
	TypeEvent MessageType = "event" // Confirm or cancel
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// DecisionData carries one debounced decision
type DecisionData struct {
	Label      gaze.Label `json:"label"`
	Confidence float64    `json:"confidence"`
}

// EventData names a calibration event: "confirm" or "cancel"
type EventData struct {
	Name string `json:"name"`
}

// ErrorData explains why a client message was rejected
type ErrorData struct {
	Message string `json:"message"`
}

// NewDecisionMessage wraps a decision
func NewDecisionMessage(d gaze.Decision) (*Message, error) {
	return NewMessage(TypeDecision, DecisionData{Label: d.Label, Confidence: d.Confidence})
}

// NewStatusMessage wraps a status snapshot
func NewStatusMessage(status interface{}) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewEventMessage wraps a calibration event
func NewEventMessage(ev trigger.Event) (*Message, error) {
	return NewMessage(TypeEvent, EventData{Name: ev.String()})
}

// NewErrorMessage wraps an error for the client
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: err.Error()})
}

// Event extracts the event from a TypeEvent message
func (m *Message) Event() (trigger.Event, error) {
	if m.Type != TypeEvent {
		return trigger.None, fmt.Errorf("protocol: %q is not an event message", m.Type)
	}
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return trigger.None, fmt.Errorf("protocol: bad event data: %w", err)
	}
	return trigger.Parse(data.Name)
}
