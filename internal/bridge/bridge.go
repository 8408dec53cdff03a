// Package bridge mediates typed, origin-checked messages between a host
// page and the one embedded game frame it currently targets.
package bridge

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/HsiangNianian/gamehub/internal/logx"
	"github.com/HsiangNianian/gamehub/internal/metrics"
	"github.com/HsiangNianian/gamehub/internal/protocol"
)

type Option func(*Bridge)

func WithAllowedOrigins(origins []string) Option {
	return func(b *Bridge) { b.allow = NewAllowList(origins) }
}

// WithDebug enables diagnostics for dropped messages and listener
// bookkeeping.
func WithDebug(debug bool) Option {
	return func(b *Bridge) { b.debug = debug }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

type Bridge struct {
	doc   Document
	win   Window
	allow AllowList
	debug bool
	log   zerolog.Logger

	mu        sync.Mutex
	target    Frame
	targetID  string
	unbind    func()
	listeners map[string][]*Registration
	pending   map[string]chan protocol.Envelope
}

func New(doc Document, win Window, opts ...Option) *Bridge {
	b := &Bridge{
		doc:       doc,
		win:       win,
		allow:     NewAllowList(nil),
		log:       logx.Component("bridge"),
		listeners: make(map[string][]*Registration),
		pending:   make(map[string]chan protocol.Envelope),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.allow.Wildcard() {
		b.log.Warn().Msg("origin allow-list contains \"*\": inbound origin checks are disabled")
	}
	return b
}

// Init binds the bridge to the frame with the given id. A bridge that is
// already initialized is reset first: its inbound binding is removed and
// every listener is dropped. When the frame cannot be found the previous
// state is left untouched and Init returns false.
func (b *Bridge) Init(targetID string) bool {
	frame, ok := b.doc.FrameByID(targetID)
	if !ok || frame == nil {
		b.log.Error().Str("target_id", targetID).Msg("frame not found")
		return false
	}

	b.mu.Lock()
	reset := b.unbind != nil
	if reset {
		b.unbind()
		b.unbind = nil
		b.clearListenersLocked()
	}
	b.target = frame
	b.targetID = targetID
	b.unbind = b.win.AddMessageHandler(b.handleMessage)
	b.mu.Unlock()

	if reset {
		b.log.Info().Str("target_id", targetID).Msg("bridge re-initialized, previous listeners cleared")
	}
	b.log.Info().Str("target_id", targetID).Str("src", frame.Src()).Msg("bridge initialized")
	return true
}

// Active reports whether the bridge has a target frame.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.target != nil
}

func (b *Bridge) TargetID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.targetID
}

// SendMessage posts {type, payload, source} to the active frame. It
// reports false when there is no active frame or the envelope cannot be
// built or delivered.
func (b *Bridge) SendMessage(msgType string, payload any) bool {
	if !b.Active() {
		b.log.Error().Str("type", msgType).Msg("no active frame, cannot send message")
		return false
	}
	if msgType == "" {
		b.log.Error().Msg("send message failed: empty type")
		return false
	}
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		b.log.Error().Err(err).Str("type", msgType).Msg("send message failed")
		metrics.IncSendFailure()
		return false
	}
	return b.post(env)
}

// Send posts a typed message. A nil message is rejected.
func (b *Bridge) Send(msg protocol.Message) bool {
	if msg == nil {
		b.log.Error().Msg("send message failed: nil message")
		return false
	}
	return b.SendMessage(msg.MessageType(), msg)
}

func (b *Bridge) SendUserInfo(info protocol.UserInfo) bool {
	return b.Send(info)
}

func (b *Bridge) SendThemeConfig(theme protocol.ThemeConfig) bool {
	return b.Send(theme)
}

func (b *Bridge) SendGameControl(action string) bool {
	return b.Send(protocol.GameControl{Action: action})
}

func (b *Bridge) post(env protocol.Envelope) (ok bool) {
	b.mu.Lock()
	frame := b.target
	b.mu.Unlock()
	if frame == nil {
		b.log.Error().Str("type", env.Type).Msg("no active frame, cannot send message")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("type", env.Type).Str("panic", fmt.Sprint(r)).Msg("send message failed")
			metrics.IncSendFailure()
			ok = false
		}
	}()

	targetOrigin, err := TargetOrigin(frame.Src())
	if err != nil {
		b.log.Error().Err(err).Str("type", env.Type).Str("src", frame.Src()).Msg("send message failed")
		metrics.IncSendFailure()
		return false
	}
	data, err := env.Marshal()
	if err != nil {
		b.log.Error().Err(err).Str("type", env.Type).Msg("send message failed")
		metrics.IncSendFailure()
		return false
	}
	if err := frame.PostMessage(data, targetOrigin); err != nil {
		b.log.Error().Err(err).Str("type", env.Type).Str("target_origin", targetOrigin).Msg("send message failed")
		metrics.IncSendFailure()
		return false
	}

	metrics.IncSent(env.Type)
	if b.debug {
		b.log.Debug().Str("type", env.Type).Str("target_origin", targetOrigin).Str("id", env.ID).Msg("message sent")
	}
	return true
}

func (b *Bridge) handleMessage(ev MessageEvent) {
	if !b.allow.Allows(ev.Origin) {
		metrics.IncDropped("origin")
		if b.debug {
			b.log.Debug().Str("origin", ev.Origin).Msg("rejected message from untrusted origin")
		}
		return
	}

	env, err := protocol.ParseEnvelope(ev.Data)
	if err != nil {
		metrics.IncDropped("malformed")
		if b.debug {
			b.log.Debug().Err(err).Str("origin", ev.Origin).Msg("dropped malformed message")
		}
		return
	}
	metrics.IncReceived(env.Type)
	if b.debug {
		b.log.Debug().Str("type", env.Type).Str("origin", ev.Origin).Msg("message received")
	}

	b.mu.Lock()
	if env.ReplyTo != "" {
		if ch, ok := b.pending[env.ReplyTo]; ok {
			select {
			case ch <- env:
			default:
			}
		}
	}
	regs := append([]*Registration(nil), b.listeners[env.Type]...)
	b.mu.Unlock()

	for _, reg := range regs {
		b.invoke(reg, env)
	}
}

func (b *Bridge) invoke(reg *Registration, env protocol.Envelope) {
	if !reg.active.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.IncListenerError(env.Type)
			b.log.Error().Str("type", env.Type).Str("panic", fmt.Sprint(r)).Msg("listener failed")
		}
	}()
	if err := reg.fn(env.Payload); err != nil {
		metrics.IncListenerError(env.Type)
		b.log.Error().Err(err).Str("type", env.Type).Msg("listener failed")
	}
}

// Destroy unbinds the inbound handler, clears the target and drops every
// listener. It is safe to call repeatedly or before Init.
func (b *Bridge) Destroy() {
	b.mu.Lock()
	unbind := b.unbind
	wasActive := b.target != nil
	b.unbind = nil
	b.target = nil
	b.targetID = ""
	b.clearListenersLocked()
	b.mu.Unlock()

	if unbind != nil {
		unbind()
	}
	if wasActive {
		b.log.Info().Msg("bridge destroyed")
	}
}
