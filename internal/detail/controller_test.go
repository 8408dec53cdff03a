package detail

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/catalog"
	"github.com/HsiangNianian/gamehub/internal/protocol"
	"github.com/HsiangNianian/gamehub/internal/store"
)

const gameOrigin = "https://games.example.com"

type testFrame struct {
	src   string
	mu    sync.Mutex
	posts [][]byte
}

func (f *testFrame) Src() string { return f.src }

func (f *testFrame) PostMessage(data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, data)
	return nil
}

func (f *testFrame) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.posts))
	for _, p := range f.posts {
		env, err := protocol.ParseEnvelope(p)
		require.NoError(t, err)
		out = append(out, env.Type)
	}
	return out
}

type testPage struct {
	id, gameID, userID string
	frame              *testFrame

	mu       sync.Mutex
	handlers []bridge.MessageHandler
}

func newTestPage(id, gameID, userID, src string) *testPage {
	return &testPage{id: id, gameID: gameID, userID: userID, frame: &testFrame{src: src}}
}

func (p *testPage) ID() string     { return p.id }
func (p *testPage) GameID() string { return p.gameID }
func (p *testPage) UserID() string { return p.userID }

func (p *testPage) FrameByID(id string) (bridge.Frame, bool) {
	if id != DefaultFrameID {
		return nil, false
	}
	return p.frame, true
}

func (p *testPage) AddMessageHandler(h bridge.MessageHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
	idx := len(p.handlers) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.handlers[idx] = nil
	}
}

func (p *testPage) emit(t *testing.T, origin, msgType string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	p.mu.Lock()
	hs := append([]bridge.MessageHandler(nil), p.handlers...)
	p.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(bridge.MessageEvent{Origin: origin, Data: data})
		}
	}
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Game{
		{ID: "dungeon-dash", Name: "Dungeon Dash", URL: gameOrigin + "/dungeon-dash/"},
		{ID: "castle-tactics", Name: "Castle Tactics", URL: "#", ComingSoon: true},
	})
}

func newController(t *testing.T) (*Controller, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	c := NewController(testCatalog(), st, Options{AllowedOrigins: []string{gameOrigin}})
	return c, st
}

func TestOpenSendsStoredUserInfo(t *testing.T) {
	c, st := newController(t)
	ctx := context.Background()
	require.NoError(t, st.SetUserInfo(ctx, protocol.UserInfo{ID: "u1", Name: "Ada"}))

	page := newTestPage("p1", "dungeon-dash", "u1", gameOrigin+"/dungeon-dash/")
	require.NoError(t, c.Open(page))
	t.Cleanup(func() { c.Close("p1") })

	assert.True(t, c.Active("p1"))
	assert.Equal(t, []string{protocol.TypeUserInfo}, page.frame.types(t))
}

func TestOpenWithoutUserInfo(t *testing.T) {
	c, _ := newController(t)
	page := newTestPage("p1", "dungeon-dash", "", gameOrigin+"/dungeon-dash/")
	require.NoError(t, c.Open(page))
	t.Cleanup(func() { c.Close("p1") })

	assert.Empty(t, page.frame.types(t))
}

func TestOpenComingSoon(t *testing.T) {
	c, _ := newController(t)
	page := newTestPage("p1", "castle-tactics", "u1", "#")
	require.NoError(t, c.Open(page))

	assert.False(t, c.Active("p1"))
	assert.Empty(t, page.handlers)
	assert.ErrorIs(t, c.Control("p1", "pause"), ErrNoSession)
}

func TestOpenErrors(t *testing.T) {
	c, _ := newController(t)

	err := c.Open(newTestPage("p1", "missing", "u1", ""))
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	c = NewController(testCatalog(), store.NewMemoryStore(), Options{FrameID: "other-frame"})
	err = c.Open(newTestPage("p2", "dungeon-dash", "u1", gameOrigin+"/dungeon-dash/"))
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.False(t, c.Active("p2"))
}

func TestAchievementsDeduplicated(t *testing.T) {
	c, st := newController(t)
	page := newTestPage("p1", "dungeon-dash", "u1", gameOrigin+"/dungeon-dash/")
	require.NoError(t, c.Open(page))
	t.Cleanup(func() { c.Close("p1") })

	first := map[string]any{"id": "boss-1", "title": "First Boss", "rarity": "gold"}
	page.emit(t, gameOrigin, protocol.TypeGameAchievement, first)
	page.emit(t, gameOrigin, protocol.TypeGameAchievement, map[string]any{"id": "boss-1", "title": "Again"})
	page.emit(t, gameOrigin, protocol.TypeGameAchievement, map[string]any{"id": "boss-2"})
	page.emit(t, "https://evil.example.com", protocol.TypeGameAchievement, map[string]any{"id": "forged"})
	page.emit(t, gameOrigin, protocol.TypeGameAchievement, map[string]any{"title": "no id"})
	page.emit(t, gameOrigin, protocol.TypeGameAchievement, map[string]any{"title": "no id again"})

	got, err := st.Achievements(context.Background(), "u1", "dungeon-dash")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "boss-1", got[0].ID)
	assert.Equal(t, "First Boss", got[0].Title)
	assert.Equal(t, "gold", got[0].Extra["rarity"])
	assert.Equal(t, "boss-2", got[1].ID)
	assert.Empty(t, got[2].ID)
	assert.Equal(t, "no id", got[2].Title)
}

func TestProgressKeepsLastSnapshot(t *testing.T) {
	c, st := newController(t)
	page := newTestPage("p1", "dungeon-dash", "", gameOrigin+"/dungeon-dash/")
	require.NoError(t, c.Open(page))
	t.Cleanup(func() { c.Close("p1") })

	page.emit(t, gameOrigin, protocol.TypeGameProgress, map[string]any{"level": 1})
	page.emit(t, gameOrigin, protocol.TypeGameProgress, map[string]any{"level": 3, "score": 1200, "checkpoint": "b2"})

	snap, err := st.Progress(context.Background(), GuestUser, "dungeon-dash")
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":3,"score":1200,"checkpoint":"b2"}`, string(snap))
}

func TestControlAndTheme(t *testing.T) {
	c, _ := newController(t)
	page := newTestPage("p1", "dungeon-dash", "", gameOrigin+"/dungeon-dash/")
	require.NoError(t, c.Open(page))

	require.NoError(t, c.Control("p1", "pause"))
	require.NoError(t, c.Theme("p1", protocol.ThemeConfig{"mode": "dark"}))
	assert.ErrorIs(t, c.Control("p1", ""), ErrNoAction)
	assert.ErrorIs(t, c.Control("nope", "pause"), ErrNoSession)
	assert.ErrorIs(t, c.Theme("nope", protocol.ThemeConfig{}), ErrNoSession)
	assert.Equal(t, []string{protocol.TypeGameControl, protocol.TypeThemeConfig}, page.frame.types(t))

	c.Close("p1")
	c.Close("p1")
	assert.False(t, c.Active("p1"))
	assert.ErrorIs(t, c.Control("p1", "resume"), ErrNoSession)

	// closing unbinds the bridge from the page
	page.emit(t, gameOrigin, protocol.TypeGameProgress, map[string]any{"level": 9})
	for _, h := range page.handlers {
		assert.Nil(t, h)
	}
}
