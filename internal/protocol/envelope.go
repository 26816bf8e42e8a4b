// Package protocol defines the JSON envelope exchanged with the relay.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies the purpose of an envelope.
type Type string

const (
	TypeDomain  Type = "domain"  // registration (client→relay) and its ack
	TypeFiles   Type = "files"   // sitemap request/response
	TypeGet     Type = "get"     // content request/response
	TypeMessage Type = "message" // informational text from the relay
)

// Standard failure messages carried in a response envelope.
const (
	MessageNoneFound  = "none found"
	MessageNotFound   = "not found"
	MessageReadFailed = "read failed"
)

// ErrMalformed is returned by Decode for envelopes without a type or message.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the unit sent over the relay connection.
// Success and IP are only set on responses and relay-originated requests.
type Envelope struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
	Success *bool  `json:"success,omitempty"`
	IP      string `json:"ip,omitempty"`
}

// Reply builds a response envelope with the success flag set.
func Reply(t Type, message, key string, success bool) Envelope {
	return Envelope{
		Type:    t,
		Message: message,
		Key:     key,
		Success: &success,
	}
}

// Succeeded reports whether the envelope carries success=true.
func (e Envelope) Succeeded() bool {
	return e.Success != nil && *e.Success
}

func (e Envelope) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// wireEnvelope keeps message raw so that presence and non-string payloads
// can be told apart.
type wireEnvelope struct {
	Type    *Type           `json:"type"`
	Message json.RawMessage `json:"message"`
	Key     string          `json:"key"`
	Success *bool           `json:"success"`
	IP      string          `json:"ip"`
}

// Encode serializes an envelope for the wire.
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses a wire frame. A missing type or message yields ErrMalformed.
// A message that is not a JSON string is kept as its compact JSON text.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == nil || w.Message == nil {
		return Envelope{}, ErrMalformed
	}

	e := Envelope{
		Type:    *w.Type,
		Key:     w.Key,
		Success: w.Success,
		IP:      w.IP,
	}

	raw := bytes.TrimSpace(w.Message)
	switch {
	case bytes.Equal(raw, []byte("null")):
	case len(raw) > 0 && raw[0] == '"':
		if err := json.Unmarshal(raw, &e.Message); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		e.Message = buf.String()
	}
	return e, nil
}
