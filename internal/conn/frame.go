package conn

import "encoding/json"

// Frame is the wire envelope for every push-channel message, both
// directions. AckID links a request frame to its acknowledgment; zero
// means no ack is expected.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   int64           `json:"ackId,omitempty"`
}

// AckEvent is the event name the server uses for acknowledgment frames.
const AckEvent = "ack"
