// Package hub fans websocket messages out to every client of one stream.
// A client that cannot keep up is dropped instead of stalling the stream.
package hub

import "github.com/gofiber/websocket/v2"

// Kind selects the websocket frame a message is written as.
type Kind int

const (
	// Text messages carry a JSON envelope.
	Text Kind = iota
	// Binary messages carry one encoded video frame.
	Binary
)

// Message is one payload queued for every client of a hub.
type Message struct {
	Kind Kind
	Data []byte
}

// NewJSONMessage wraps an already encoded envelope.
func NewJSONMessage(data []byte) Message {
	return Message{Kind: Text, Data: data}
}

// NewFrameMessage wraps an encoded JPEG frame.
func NewFrameMessage(jpeg []byte) Message {
	return Message{Kind: Binary, Data: jpeg}
}

// opcode is the websocket message type the payload is sent with.
func (m Message) opcode() int {
	if m.Kind == Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
