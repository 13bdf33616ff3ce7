package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the uniform wire format for every pushed or polled event:
// one JSON object per event, identical on the WebSocket, SSE and polling
// paths. Envelopes are transient; durability is the caller's problem.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds an envelope with a fresh id and the current time.
func New(typ string, data json.RawMessage) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Encode serializes the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
