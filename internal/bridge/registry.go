package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

// Listener receives the payload of one inbound message. A returned error
// is logged and does not stop delivery to later listeners.
type Listener func(payload json.RawMessage) error

// Registration is the handle for one AddListener call. Registering the
// same func twice yields two registrations, each invoked once per message.
type Registration struct {
	bridge  *Bridge
	msgType string
	fn      Listener
	active  atomic.Bool
}

func (r *Registration) Type() string { return r.msgType }

// Remove unregisters exactly this registration.
func (r *Registration) Remove() {
	if r == nil || r.bridge == nil {
		return
	}
	r.bridge.RemoveListener(r.msgType, r)
}

// AddListener appends fn to the listeners of msgType. Listeners run in
// registration order.
func (b *Bridge) AddListener(msgType string, fn Listener) *Registration {
	reg := &Registration{bridge: b, msgType: msgType, fn: fn}
	reg.active.Store(true)

	b.mu.Lock()
	b.listeners[msgType] = append(b.listeners[msgType], reg)
	b.mu.Unlock()

	if b.debug {
		b.log.Debug().Str("type", msgType).Msg("listener added")
	}
	return reg
}

// RemoveListener removes reg from the listeners of msgType. It is a no-op
// when reg is not registered under that type.
func (b *Bridge) RemoveListener(msgType string, reg *Registration) {
	if reg == nil {
		return
	}
	b.mu.Lock()
	regs := b.listeners[msgType]
	idx := -1
	for i, r := range regs {
		if r == reg {
			idx = i
			break
		}
	}
	if idx == -1 {
		b.mu.Unlock()
		return
	}
	next := make([]*Registration, 0, len(regs)-1)
	next = append(next, regs[:idx]...)
	next = append(next, regs[idx+1:]...)
	if len(next) == 0 {
		delete(b.listeners, msgType)
	} else {
		b.listeners[msgType] = next
	}
	reg.active.Store(false)
	b.mu.Unlock()

	if b.debug {
		b.log.Debug().Str("type", msgType).Msg("listener removed")
	}
}

// Listeners returns how many registrations msgType currently has.
func (b *Bridge) Listeners(msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[msgType])
}

func (b *Bridge) clearListenersLocked() {
	for msgType, regs := range b.listeners {
		for _, r := range regs {
			r.active.Store(false)
		}
		delete(b.listeners, msgType)
	}
}

// Subscribe registers a typed listener for T's message type. Payloads
// that do not decode into T are reported as listener errors. T must be a
// concrete variant with a fixed type tag.
func Subscribe[T protocol.Message](b *Bridge, fn func(T) error) *Registration {
	var zero T
	msgType := zero.MessageType()
	return b.AddListener(msgType, func(payload json.RawMessage) error {
		v, err := protocol.DecodePayload[T](payload)
		if err != nil {
			return fmt.Errorf("decode %s payload failed: %w", msgType, err)
		}
		return fn(v)
	})
}
