package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/HsiangNianian/gamehub/internal/bridge"
	"github.com/HsiangNianian/gamehub/internal/catalog"
	"github.com/HsiangNianian/gamehub/internal/detail"
	"github.com/HsiangNianian/gamehub/internal/protocol"
	"github.com/HsiangNianian/gamehub/internal/store"
	"github.com/HsiangNianian/gamehub/internal/ws"
)

const (
	relatedGames = 3
	maxBodyBytes = 64 * 1024
)

var errMissingGame = errors.New("game query parameter is required")

type handlers struct {
	Deps
	log zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (h *handlers) listGames(w http.ResponseWriter, r *http.Request) {
	q := catalog.ParseQuery(r.URL.Query().Get)
	writeJSON(w, http.StatusOK, h.Catalog.Find(q))
}

func (h *handlers) getGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := h.Catalog.Game(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "game_not_found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Game    catalog.Game   `json:"game"`
		Related []catalog.Game `json:"related"`
	}{Game: g, Related: h.Catalog.Related(id, relatedGames)})
}

func (h *handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.Store.Favorites(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"favorites": favs})
}

func (h *handlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	user, game := chi.URLParam(r, "user"), chi.URLParam(r, "game")
	if _, err := h.Catalog.Game(game); err != nil {
		writeError(w, http.StatusNotFound, "game_not_found")
		return
	}
	fav, err := h.Store.ToggleFavorite(r.Context(), user, game)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameId": game, "favorite": fav})
}

func (h *handlers) listRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.Store.Ratings(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]int{"ratings": ratings})
}

func (h *handlers) setRating(w http.ResponseWriter, r *http.Request) {
	user, game := chi.URLParam(r, "user"), chi.URLParam(r, "game")
	if _, err := h.Catalog.Game(game); err != nil {
		writeError(w, http.StatusNotFound, "game_not_found")
		return
	}
	var body struct {
		Rating int `json:"rating"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	err := h.Store.SetRating(r.Context(), user, game, body.Rating)
	if errors.Is(err, store.ErrInvalidRating) {
		writeError(w, http.StatusBadRequest, "invalid_rating")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameId": game, "rating": body.Rating})
}

func (h *handlers) listAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.Achievements(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "game"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]protocol.GameAchievement{"achievements": list})
}

func (h *handlers) getProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Progress(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "game"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if len(snap) == 0 {
		writeError(w, http.StatusNotFound, "no_progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"progress": snap})
}

func (h *handlers) setUserInfo(w http.ResponseWriter, r *http.Request) {
	var info protocol.UserInfo
	if err := decodeBody(r, &info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	info.ID = chi.URLParam(r, "user")
	if err := h.Store.SetUserInfo(r.Context(), info); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type sessionView struct {
	ws.PageSummary
	Bridge bool `json:"bridge"`
}

func (h *handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	out := []sessionView{}
	if h.Hub != nil {
		for _, p := range h.Hub.Pages() {
			out = append(out, sessionView{PageSummary: p, Bridge: h.Sessions != nil && h.Sessions.Active(p.ID)})
		}
	}
	writeJSON(w, http.StatusOK, map[string][]sessionView{"sessions": out})
}

func (h *handlers) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, detail.ErrNoSession):
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, detail.ErrNoAction):
		writeError(w, http.StatusBadRequest, "invalid_action")
	case errors.Is(err, bridge.ErrSendFailed):
		writeError(w, http.StatusBadGateway, "send_failed")
	default:
		h.internalError(w, r, err)
	}
}

func (h *handlers) controlSession(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	var body protocol.GameControl
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if err := h.Sessions.Control(chi.URLParam(r, "id"), body.Action); err != nil {
		h.sessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) themeSession(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	var theme protocol.ThemeConfig
	if err := decodeBody(r, &theme); err != nil || theme == nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if err := h.Sessions.Theme(chi.URLParam(r, "id"), theme); err != nil {
		h.sessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
