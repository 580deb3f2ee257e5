package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags an envelope.
type Type string

const (
	TypeJoin              Type = "join"
	TypeMsg               Type = "msg"
	TypePM                Type = "pm"
	TypeSys               Type = "sys"
	TypeTyping            Type = "typing"
	TypeStopTyping        Type = "stop_typing"
	TypeUsernameConfirmed Type = "username_confirmed"
)

// Known reports whether t is one of the protocol's message types.
func (t Type) Known() bool {
	switch t {
	case TypeJoin, TypeMsg, TypePM, TypeSys, TypeTyping, TypeStopTyping, TypeUsernameConfirmed:
		return true
	default:
		return false
	}
}

// ErrMalformedMessage reports a payload that is not an envelope.
var ErrMalformedMessage = errors.New("proto: malformed message")

// Envelope is the message carried inside every frame.
type Envelope struct {
	Type Type   `json:"type"`
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
	TS   int64  `json:"ts"`
}

// Targeted reports whether the envelope is addressed to a single user.
func (e Envelope) Targeted() bool {
	return e.To != ""
}

// Encode serializes an envelope into a frame payload.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a frame payload. Unknown types decode successfully; a payload
// that is not a JSON object with a type field is malformed.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, fmt.Errorf("%w: payload is not an object", ErrMalformedMessage)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}

// System builds a sys notice.
func System(text string, ts int64) Envelope {
	return Envelope{Type: TypeSys, Text: text, TS: ts}
}

// Confirmed builds the username_confirmed reply sent to a joining client.
func Confirmed(nickname, text string, ts int64) Envelope {
	return Envelope{Type: TypeUsernameConfirmed, From: nickname, Text: text, TS: ts}
}
