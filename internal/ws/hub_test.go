package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/gamehub/internal/bridge"
)

const testOrigin = "https://games.example.com"

type recordingHooks struct {
	opened chan *Page
	closed chan *Page
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{opened: make(chan *Page, 4), closed: make(chan *Page, 4)}
}

func (h *recordingHooks) OnOpen(p *Page)  { h.opened <- p }
func (h *recordingHooks) OnClose(p *Page) { h.closed <- p }

func testResolver(r *http.Request) (PageInfo, error) {
	game := r.URL.Query().Get("game")
	switch game {
	case "":
		return PageInfo{}, errors.New("game is required")
	case "dungeon-dash":
		return PageInfo{GameID: game, UserID: r.URL.Query().Get("user"), Src: testOrigin + "/dungeon/index.html"}, nil
	default:
		return PageInfo{}, ErrUnknownGame
	}
}

func startHub(t *testing.T, hooks Hooks) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub("game-frame", testResolver, hooks)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleFrame))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query, origin string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	header := http.Header{}
	header.Set("Origin", origin)
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitPage(t *testing.T, ch <-chan *Page) *Page {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for page hook")
		return nil
	}
}

func TestHandleFrameRejects(t *testing.T) {
	_, srv := startHub(t, nil)

	resp, err := http.Get(srv.URL + "/?game=missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPageLifecycle(t *testing.T) {
	hooks := newRecordingHooks()
	hub, srv := startHub(t, hooks)

	conn := dial(t, srv, "game=dungeon-dash&user=u1", testOrigin)
	page := waitPage(t, hooks.opened)

	assert.Equal(t, "dungeon-dash", page.GameID())
	assert.Equal(t, "u1", page.UserID())
	assert.Equal(t, 1, hub.Count())
	got, ok := hub.Page(page.ID())
	require.True(t, ok)
	assert.Same(t, page, got)

	summaries := hub.Pages()
	require.Len(t, summaries, 1)
	assert.Equal(t, testOrigin, summaries[0].Origin)
	assert.Equal(t, testOrigin+"/dungeon/index.html", summaries[0].Src)

	frame, ok := page.FrameByID("game-frame")
	require.True(t, ok)
	assert.Equal(t, testOrigin+"/dungeon/index.html", frame.Src())
	_, ok = page.FrameByID("other")
	assert.False(t, ok)

	require.NoError(t, conn.Close())
	closed := waitPage(t, hooks.closed)
	assert.Equal(t, page.ID(), closed.ID())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok = hub.Page(page.ID())
	assert.False(t, ok)
}

func TestInboundDispatch(t *testing.T) {
	hooks := newRecordingHooks()
	_, srv := startHub(t, hooks)

	conn := dial(t, srv, "game=dungeon-dash", "https://GAMES.example.com:443")
	page := waitPage(t, hooks.opened)

	events := make(chan bridge.MessageEvent, 4)
	remove := page.AddMessageHandler(func(ev bridge.MessageEvent) { events <- ev })
	assert.Equal(t, 1, page.boundHandlers())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GAME_PROGRESS","payload":{"level":2}}`)))
	select {
	case ev := <-events:
		assert.Equal(t, testOrigin, ev.Origin)
		assert.JSONEq(t, `{"type":"GAME_PROGRESS","payload":{"level":2}}`, string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}

	remove()
	remove()
	assert.Equal(t, 0, page.boundHandlers())
}

func TestPostMessage(t *testing.T) {
	hooks := newRecordingHooks()
	_, srv := startHub(t, hooks)

	conn := dial(t, srv, "game=dungeon-dash", testOrigin)
	page := waitPage(t, hooks.opened)
	frame, ok := page.FrameByID("game-frame")
	require.True(t, ok)

	require.NoError(t, frame.PostMessage([]byte(`{"type":"DROPPED"}`), "https://evil.example.com"))
	require.NoError(t, frame.PostMessage([]byte(`{"type":"USER_INFO"}`), testOrigin))
	require.NoError(t, frame.PostMessage([]byte(`{"type":"GAME_CONTROL"}`), bridge.Wildcard))

	for _, want := range []string{"USER_INFO", "GAME_CONTROL"} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, want, env.Type)
	}
}

func TestPostMessageAfterClose(t *testing.T) {
	hooks := newRecordingHooks()
	_, srv := startHub(t, hooks)

	conn := dial(t, srv, "game=dungeon-dash", testOrigin)
	page := waitPage(t, hooks.opened)
	frame, _ := page.FrameByID("game-frame")

	require.NoError(t, conn.Close())
	waitPage(t, hooks.closed)
	assert.ErrorIs(t, frame.PostMessage([]byte(`{}`), bridge.Wildcard), errFrameClosed)
}

func TestBridgeOverPage(t *testing.T) {
	hooks := newRecordingHooks()
	_, srv := startHub(t, hooks)

	conn := dial(t, srv, "game=dungeon-dash", testOrigin)
	page := waitPage(t, hooks.opened)

	b := bridge.New(page, page, bridge.WithAllowedOrigins([]string{testOrigin}))
	require.True(t, b.Init("game-frame"))
	t.Cleanup(b.Destroy)

	got := make(chan json.RawMessage, 1)
	b.AddListener("GAME_ACHIEVEMENT", func(payload json.RawMessage) error {
		got <- payload
		return nil
	})

	require.True(t, b.SendGameControl("pause"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GAME_CONTROL","payload":{"action":"pause"},"source":"html5-game-hub"}`, string(data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GAME_ACHIEVEMENT","payload":{"id":"a1","title":"First"}}`)))
	select {
	case payload := <-got:
		assert.JSONEq(t, `{"id":"a1","title":"First"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("listener not invoked")
	}
}
