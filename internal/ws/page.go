package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/metrics"
)

var (
	errFrameClosed    = errors.New("frame connection closed")
	errSendBufferFull = errors.New("frame send buffer full")
)

// frameConn is the embedded frame element backed by a websocket client.
type frameConn struct {
	src    string
	origin string
	conn   *websocket.Conn
	send   chan []byte
	log    zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func (f *frameConn) Src() string { return f.src }

// PostMessage queues data for the client. Like window.postMessage, a
// message addressed to a different origin is dropped without error.
func (f *frameConn) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != bridge.Wildcard && bridge.NormalizeOrigin(targetOrigin) != bridge.NormalizeOrigin(f.origin) {
		metrics.IncFrameDropped()
		f.log.Debug().Str("target_origin", targetOrigin).Str("frame_origin", f.origin).Msg("target origin mismatch, message not delivered")
		return nil
	}
	select {
	case <-f.closed:
		return errFrameClosed
	default:
	}
	select {
	case f.send <- data:
		return nil
	default:
		metrics.IncFrameDropped()
		return errSendBufferFull
	}
}

func (f *frameConn) close() {
	f.closeOnce.Do(func() {
		close(f.closed)
		_ = f.conn.Close()
	})
}

// Page is the host page of one connected game frame. It is the document
// the bridge resolves its target in and the window it receives on.
type Page struct {
	id          string
	gameID      string
	userID      string
	frameID     string
	connectedAt time.Time
	frame       *frameConn

	mu       sync.Mutex
	nextID   int
	handlers map[int]bridge.MessageHandler
	order    []int
}

type PageSummary struct {
	ID          string    `json:"id"`
	GameID      string    `json:"gameId"`
	UserID      string    `json:"userId,omitempty"`
	Origin      string    `json:"origin"`
	Src         string    `json:"src"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (p *Page) ID() string      { return p.id }
func (p *Page) GameID() string  { return p.gameID }
func (p *Page) UserID() string  { return p.userID }
func (p *Page) FrameID() string { return p.frameID }

func (p *Page) Summary() PageSummary {
	return PageSummary{
		ID:          p.id,
		GameID:      p.gameID,
		UserID:      p.userID,
		Origin:      p.frame.origin,
		Src:         p.frame.src,
		ConnectedAt: p.connectedAt,
	}
}

func (p *Page) FrameByID(id string) (bridge.Frame, bool) {
	if id != p.frameID || p.frame == nil {
		return nil, false
	}
	return p.frame, true
}

func (p *Page) AddMessageHandler(h bridge.MessageHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlers == nil {
		p.handlers = make(map[int]bridge.MessageHandler)
	}
	id := p.nextID
	p.nextID++
	p.handlers[id] = h
	p.order = append(p.order, id)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
		for i, v := range p.order {
			if v == id {
				p.order = append(p.order[:i:i], p.order[i+1:]...)
				break
			}
		}
	}
}

// dispatch delivers ev to every bound handler. Handlers run without the
// page lock held.
func (p *Page) dispatch(ev bridge.MessageEvent) {
	p.mu.Lock()
	hs := make([]bridge.MessageHandler, 0, len(p.order))
	for _, id := range p.order {
		hs = append(hs, p.handlers[id])
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (p *Page) boundHandlers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}
