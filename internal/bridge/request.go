package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

var (
	ErrNotInitialized = errors.New("bridge has no active frame")
	ErrSendFailed     = errors.New("message could not be posted")
)

// Request sends msgType with a fresh correlation id and waits for an
// inbound envelope whose replyTo carries that id. With retry > 0 the
// request is re-posted every retry interval until a reply arrives or ctx
// ends. Replies still reach the regular listeners of their type.
func (b *Bridge) Request(ctx context.Context, msgType string, payload any, retry time.Duration) (protocol.Envelope, error) {
	if !b.Active() {
		return protocol.Envelope{}, ErrNotInitialized
	}
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.ID = uuid.NewString()

	replies := make(chan protocol.Envelope, 1)
	b.mu.Lock()
	b.pending[env.ID] = replies
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, env.ID)
		b.mu.Unlock()
	}()

	if !b.post(env) {
		return protocol.Envelope{}, ErrSendFailed
	}

	var tick <-chan time.Time
	if retry > 0 {
		ticker := time.NewTicker(retry)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case reply := <-replies:
			return reply, nil
		case <-tick:
			if b.debug {
				b.log.Debug().Str("type", msgType).Str("id", env.ID).Msg("retrying request")
			}
			if !b.post(env) {
				return protocol.Envelope{}, ErrSendFailed
			}
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		}
	}
}
