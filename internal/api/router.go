// Package api serves the hub's HTTP surface: the catalog, per-user
// preferences, live game sessions and the frame websocket endpoint.
package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/catalog"
	"github.com/HsiangNianian/gamehub/internal/logx"
	"github.com/HsiangNianian/gamehub/internal/protocol"
	"github.com/HsiangNianian/gamehub/internal/store"
	"github.com/HsiangNianian/gamehub/internal/ws"
)

// Sessions controls the live bridge of a connected page.
type Sessions interface {
	Active(pageID string) bool
	Control(pageID, action string) error
	Theme(pageID string, theme protocol.ThemeConfig) error
}

type Deps struct {
	Catalog        *catalog.Catalog
	Store          store.Store
	Hub            *ws.Hub
	Sessions       Sessions
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	FramePath      string
}

func NewRouter(d Deps) http.Handler {
	h := &handlers{Deps: d, log: logx.Component("api")}

	r := chi.NewRouter()
	if len(d.AllowedOrigins) > 0 && !slices.Contains(d.AllowedOrigins, bridge.Wildcard) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range middlewareChain(h.log) {
		r.Use(m)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Hub != nil {
		framePath := d.FramePath
		if framePath == "" {
			framePath = "/ws/frame"
		}
		r.Get(framePath, d.Hub.HandleFrame)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/games", h.listGames)
		r.Get("/games/{id}", h.getGame)

		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/favorites", h.listFavorites)
			r.Post("/favorites/{game}", h.toggleFavorite)
			r.Get("/ratings", h.listRatings)
			r.Put("/ratings/{game}", h.setRating)
			r.Get("/games/{game}/achievements", h.listAchievements)
			r.Get("/games/{game}/progress", h.getProgress)
			r.Put("/info", h.setUserInfo)
		})

		r.Get("/sessions", h.listSessions)
		r.Post("/sessions/{id}/control", h.controlSession)
		r.Post("/sessions/{id}/theme", h.themeSession)
	})

	return r
}

// GameResolver resolves frame connections from the game and user query
// parameters against the catalog.
func GameResolver(cat *catalog.Catalog) ws.Resolver {
	return func(r *http.Request) (ws.PageInfo, error) {
		id := r.URL.Query().Get("game")
		if id == "" {
			return ws.PageInfo{}, errMissingGame
		}
		g, err := cat.Game(id)
		if err != nil {
			return ws.PageInfo{}, ws.ErrUnknownGame
		}
		return ws.PageInfo{GameID: g.ID, UserID: r.URL.Query().Get("user"), Src: g.URL}, nil
	}
}
