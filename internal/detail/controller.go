// Package detail runs the game detail page for each connected frame: it
// owns the page's bridge and persists what the game reports back.
package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/catalog"
	"github.com/HsiangNianian/gamehub/internal/logx"
	"github.com/HsiangNianian/gamehub/internal/protocol"
	"github.com/HsiangNianian/gamehub/internal/store"
	"github.com/HsiangNianian/gamehub/internal/ws"
)

const (
	DefaultFrameID = "game-frame"
	// GuestUser owns what anonymous pages unlock.
	GuestUser    = "guest"
	storeTimeout = 5 * time.Second
)

var (
	ErrNoSession  = errors.New("no active game session")
	ErrInitFailed = errors.New("bridge init failed")
	ErrNoAction   = errors.New("control action is required")
)

// Page is a loaded detail page hosting one game frame.
type Page interface {
	bridge.Document
	bridge.Window
	ID() string
	GameID() string
	UserID() string
}

type Options struct {
	FrameID        string
	AllowedOrigins []string
	Debug          bool
}

type session struct {
	page   Page
	game   catalog.Game
	bridge *bridge.Bridge
}

func (s *session) owner() string {
	if id := s.page.UserID(); id != "" {
		return id
	}
	return GuestUser
}

type Controller struct {
	catalog *catalog.Catalog
	store   store.Store
	opts    Options
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewController(cat *catalog.Catalog, st store.Store, opts Options) *Controller {
	if opts.FrameID == "" {
		opts.FrameID = DefaultFrameID
	}
	return &Controller{
		catalog:  cat,
		store:    st,
		opts:     opts,
		log:      logx.Component("detail"),
		sessions: make(map[string]*session),
	}
}

func (c *Controller) OnOpen(p *ws.Page) {
	if err := c.Open(p); err != nil {
		c.log.Error().Err(err).Str("page_id", p.ID()).Str("game_id", p.GameID()).Msg("open game session failed")
	}
}

func (c *Controller) OnClose(p *ws.Page) {
	c.Close(p.ID())
}

// Open wires a bridge to the page's game frame. Games that are not
// playable yet get no bridge and Open returns nil.
func (c *Controller) Open(p Page) error {
	game, err := c.catalog.Game(p.GameID())
	if err != nil {
		return fmt.Errorf("resolve game %q: %w", p.GameID(), err)
	}
	if !game.Playable() {
		c.log.Info().Str("page_id", p.ID()).Str("game_id", game.ID).Msg("game coming soon, no bridge")
		return nil
	}

	b := bridge.New(p, p,
		bridge.WithAllowedOrigins(c.opts.AllowedOrigins),
		bridge.WithDebug(c.opts.Debug),
		bridge.WithLogger(logx.Component("bridge").With().Str("page_id", p.ID()).Logger()),
	)
	if !b.Init(c.opts.FrameID) {
		return ErrInitFailed
	}

	s := &session{page: p, game: game, bridge: b}
	c.sendUserInfo(s)
	bridge.Subscribe(b, func(a protocol.GameAchievement) error { return c.onAchievement(s, a) })
	bridge.Subscribe(b, func(pr protocol.GameProgress) error { return c.onProgress(s, pr) })

	c.mu.Lock()
	prev := c.sessions[p.ID()]
	c.sessions[p.ID()] = s
	c.mu.Unlock()
	if prev != nil {
		prev.bridge.Destroy()
	}

	c.log.Info().Str("page_id", p.ID()).Str("game_id", game.ID).Msg("game session opened")
	return nil
}

func (c *Controller) sendUserInfo(s *session) {
	userID := s.page.UserID()
	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	info, err := c.store.UserInfo(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("load user info failed")
		return
	}
	if info == nil {
		return
	}
	s.bridge.SendUserInfo(*info)
}

func (c *Controller) onAchievement(s *session, a protocol.GameAchievement) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	added, err := c.store.AddAchievement(ctx, s.owner(), s.game.ID, a)
	if err != nil {
		return fmt.Errorf("save achievement: %w", err)
	}
	if !added {
		return nil
	}
	title := a.Title
	if title == "" {
		title = "Achievement unlocked"
	}
	c.log.Info().
		Str("page_id", s.page.ID()).
		Str("user_id", s.owner()).
		Str("game_id", s.game.ID).
		Str("achievement_id", a.ID).
		Str("title", title).
		Str("description", a.Description).
		Msg("achievement unlocked")
	return nil
}

func (c *Controller) onProgress(s *session, p protocol.GameProgress) error {
	snapshot, err := p.MarshalJSON()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.SetProgress(ctx, s.owner(), s.game.ID, snapshot); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Close destroys the page's bridge, if any.
func (c *Controller) Close(pageID string) {
	c.mu.Lock()
	s := c.sessions[pageID]
	delete(c.sessions, pageID)
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.bridge.Destroy()
	c.log.Info().Str("page_id", pageID).Str("game_id", s.game.ID).Msg("game session closed")
}

func (c *Controller) Active(pageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[pageID]
	return ok
}

func (c *Controller) bridgeFor(pageID string) (*bridge.Bridge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[pageID]
	if !ok {
		return nil, ErrNoSession
	}
	return s.bridge, nil
}

// Control sends a GAME_CONTROL action such as pause, resume or restart.
func (c *Controller) Control(pageID, action string) error {
	if action == "" {
		return ErrNoAction
	}
	b, err := c.bridgeFor(pageID)
	if err != nil {
		return err
	}
	if !b.SendGameControl(action) {
		return bridge.ErrSendFailed
	}
	return nil
}

func (c *Controller) Theme(pageID string, theme protocol.ThemeConfig) error {
	b, err := c.bridgeFor(pageID)
	if err != nil {
		return err
	}
	if !b.SendThemeConfig(theme) {
		return bridge.ErrSendFailed
	}
	return nil
}
