package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is one variant of the typed message union. Each variant
// carries its own payload shape keyed by MessageType.
type Message interface {
	MessageType() string
}

type UserInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Avatar      string         `json:"avatar,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

func (UserInfo) MessageType() string { return TypeUserInfo }

// ThemeConfig is an open theme descriptor.
type ThemeConfig map[string]any

func (ThemeConfig) MessageType() string { return TypeThemeConfig }

type GameControl struct {
	Action string `json:"action"`
}

func (GameControl) MessageType() string { return TypeGameControl }

// GameAchievement keeps any fields beyond id/title/description in Extra.
type GameAchievement struct {
	ID          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"-"`
}

func (GameAchievement) MessageType() string { return TypeGameAchievement }

func (a GameAchievement) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+3)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["id"] = a.ID
	if a.Title != "" {
		out["title"] = a.Title
	}
	if a.Description != "" {
		out["description"] = a.Description
	}
	return json.Marshal(out)
}

func (a *GameAchievement) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*a = GameAchievement{}
	for k, v := range fields {
		switch k {
		case "id":
			a.ID = stringify(v)
		case "title":
			a.Title = stringify(v)
		case "description":
			a.Description = stringify(v)
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = v
		}
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// GameProgress is an implementation-defined snapshot. Raw holds the
// payload as received; the optional fields are lifted when present.
type GameProgress struct {
	Level    *int            `json:"level,omitempty"`
	Score    *float64        `json:"score,omitempty"`
	Progress *float64        `json:"progress,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

func (GameProgress) MessageType() string { return TypeGameProgress }

func (p GameProgress) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type plain GameProgress
	return json.Marshal(plain(p))
}

func (p *GameProgress) UnmarshalJSON(data []byte) error {
	type plain GameProgress
	var v plain
	// snapshots that are not objects are kept raw only
	_ = json.Unmarshal(data, &v)
	*p = GameProgress(v)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Unknown carries any type the hub has no variant for.
type Unknown struct {
	Type    string
	Payload json.RawMessage
}

func (u Unknown) MessageType() string { return u.Type }

func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Payload) == 0 {
		return []byte("null"), nil
	}
	return u.Payload, nil
}

// Encode wraps a typed message in an envelope.
func Encode(msg Message) (Envelope, error) {
	return NewEnvelope(msg.MessageType(), msg)
}

// Decode maps an envelope to its typed variant.
func Decode(env Envelope) (Message, error) {
	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeUserInfo:
		var v UserInfo
		err = decodeInto(env.Payload, &v)
		msg = v
	case TypeThemeConfig:
		var v ThemeConfig
		err = decodeInto(env.Payload, &v)
		msg = v
	case TypeGameControl:
		var v GameControl
		err = decodeInto(env.Payload, &v)
		msg = v
	case TypeGameAchievement:
		var v GameAchievement
		err = decodeInto(env.Payload, &v)
		msg = v
	case TypeGameProgress:
		var v GameProgress
		err = decodeInto(env.Payload, &v)
		msg = v
	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload failed: %w", env.Type, err)
	}
	return msg, nil
}

// DecodePayload decodes a raw payload into the variant T.
func DecodePayload[T Message](payload json.RawMessage) (T, error) {
	var v T
	if err := decodeInto(payload, &v); err != nil {
		return v, err
	}
	return v, nil
}

func decodeInto(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
