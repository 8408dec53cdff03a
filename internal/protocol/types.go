package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Source tags every envelope sent by the hub.
const Source = "html5-game-hub"

const (
	TypeUserInfo        = "USER_INFO"
	TypeThemeConfig     = "THEME_CONFIG"
	TypeGameControl     = "GAME_CONTROL"
	TypeGameAchievement = "GAME_ACHIEVEMENT"
	TypeGameProgress    = "GAME_PROGRESS"
)

var ErrMalformed = errors.New("malformed message")

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Source  string          `json:"source,omitempty"`
	ID      string          `json:"id,omitempty"`
	ReplyTo string          `json:"replyTo,omitempty"`
}

// ParseEnvelope decodes raw message data. Null, non-object data and a
// missing type are reported as ErrMalformed.
func ParseEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrMalformed
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Marshal encodes the envelope with the hub source tag.
func (e Envelope) Marshal() ([]byte, error) {
	e.Source = Source
	return json.Marshal(e)
}

func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw, Source: Source}, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload failed: %w", err)
	}
	return raw, nil
}
