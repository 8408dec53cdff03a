package ws

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/logx"
	"github.com/HsiangNianian/gamehub/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var ErrUnknownGame = errors.New("unknown game")

// PageInfo describes the frame a connecting client is loaded into.
type PageInfo struct {
	GameID string
	UserID string
	Src    string
}

// Resolver maps a frame connection request to its page. Returning
// ErrUnknownGame answers 404.
type Resolver func(r *http.Request) (PageInfo, error)

// Hooks observe the page lifecycle: OnOpen runs once the frame has
// loaded, OnClose when it goes away.
type Hooks interface {
	OnOpen(p *Page)
	OnClose(p *Page)
}

type Hub struct {
	frameID string
	resolve Resolver
	hooks   Hooks
	log     zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	pages map[string]*Page
}

func NewHub(frameID string, resolve Resolver, hooks Hooks) *Hub {
	return &Hub{
		frameID: frameID,
		resolve: resolve,
		hooks:   hooks,
		log:     logx.Component("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the bridge allow-list is the trust boundary for frame messages
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		pages: make(map[string]*Page),
	}
}

func (h *Hub) HandleFrame(w http.ResponseWriter, r *http.Request) {
	info, err := h.resolve(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownGame) {
			status = http.StatusNotFound
		}
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("reject frame connection")
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("upgrade frame ws failed")
		return
	}

	page := &Page{
		id:          uuid.NewString(),
		gameID:      info.GameID,
		userID:      info.UserID,
		frameID:     h.frameID,
		connectedAt: time.Now().UTC(),
	}
	page.frame = &frameConn{
		src:    info.Src,
		origin: bridge.NormalizeOrigin(r.Header.Get("Origin")),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		log:    h.log.With().Str("page_id", page.id).Logger(),
	}

	h.mu.Lock()
	h.pages[page.id] = page
	count := len(h.pages)
	h.mu.Unlock()
	metrics.AddFrames(1)

	h.log.Info().
		Str("page_id", page.id).
		Str("game_id", page.gameID).
		Str("origin", page.frame.origin).
		Int("active_frames", count).
		Msg("frame connected")

	go h.writeFrame(page.frame)
	if h.hooks != nil {
		h.hooks.OnOpen(page)
	}
	h.readFrame(page)
}

func (h *Hub) readFrame(page *Page) {
	defer func() {
		if h.hooks != nil {
			h.hooks.OnClose(page)
		}
		h.mu.Lock()
		delete(h.pages, page.id)
		count := len(h.pages)
		h.mu.Unlock()
		metrics.AddFrames(-1)
		page.frame.close()
		h.log.Info().Str("page_id", page.id).Int("active_frames", count).Msg("frame disconnected")
	}()

	conn := page.frame.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("page_id", page.id).Msg("recv frame->hub failed")
			}
			return
		}
		page.dispatch(bridge.MessageEvent{Origin: page.frame.origin, Data: data})
	}
}

func (h *Hub) writeFrame(f *frameConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.close()
	}()

	for {
		select {
		case <-f.closed:
			return
		case msg := <-f.send:
			_ = f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := f.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warn().Err(err).Msg("send hub->frame failed")
				return
			}
		case <-ticker.C:
			_ = f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) Page(id string) (*Page, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pages[id]
	return p, ok
}

// Pages lists connected pages, oldest first.
func (h *Hub) Pages() []PageSummary {
	h.mu.RLock()
	out := make([]PageSummary, 0, len(h.pages))
	for _, p := range h.pages {
		out = append(out, p.Summary())
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages)
}

// Close drops every frame connection; their read loops then run the
// OnClose hooks.
func (h *Hub) Close() {
	h.mu.RLock()
	pages := make([]*Page, 0, len(h.pages))
	for _, p := range h.pages {
		pages = append(pages, p)
	}
	h.mu.RUnlock()
	for _, p := range pages {
		p.frame.close()
	}
}
