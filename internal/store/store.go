package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrMissingID     = errors.New("user id and game id are required")
)

// Store persists per-user game preferences: favorites, ratings, unlocked
// achievements, the last progress snapshot and the user profile sent to
// games.
type Store interface {
	Favorites(ctx context.Context, userID string) ([]string, error)
	IsFavorite(ctx context.Context, userID, gameID string) (bool, error)
	// ToggleFavorite flips the favorite flag and returns the new state.
	ToggleFavorite(ctx context.Context, userID, gameID string) (bool, error)

	Rating(ctx context.Context, userID, gameID string) (int, error)
	Ratings(ctx context.Context, userID string) (map[string]int, error)
	SetRating(ctx context.Context, userID, gameID string, rating int) error

	// AddAchievement stores a unless an achievement with the same id was
	// already unlocked for the game. It reports whether a was new.
	AddAchievement(ctx context.Context, userID, gameID string, a protocol.GameAchievement) (bool, error)
	Achievements(ctx context.Context, userID, gameID string) ([]protocol.GameAchievement, error)

	SetProgress(ctx context.Context, userID, gameID string, snapshot json.RawMessage) error
	Progress(ctx context.Context, userID, gameID string) (json.RawMessage, error)

	SetUserInfo(ctx context.Context, info protocol.UserInfo) error
	UserInfo(ctx context.Context, userID string) (*protocol.UserInfo, error)

	Close() error
}

func validRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

type MemoryStore struct {
	mu           sync.RWMutex
	favorites    map[string][]string
	ratings      map[string]map[string]int
	achievements map[string][]protocol.GameAchievement
	progress     map[string]json.RawMessage
	users        map[string]protocol.UserInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		favorites:    make(map[string][]string),
		ratings:      make(map[string]map[string]int),
		achievements: make(map[string][]protocol.GameAchievement),
		progress:     make(map[string]json.RawMessage),
		users:        make(map[string]protocol.UserInfo),
	}
}

// gameKey is length-prefixed so ids containing ":" cannot collide.
func gameKey(userID, gameID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + ":" + gameID
}

func (m *MemoryStore) Favorites(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.favorites[userID])
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (m *MemoryStore) IsFavorite(_ context.Context, userID, gameID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.favorites[userID], gameID), nil
}

func (m *MemoryStore) ToggleFavorite(_ context.Context, userID, gameID string) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	favs := m.favorites[userID]
	if i := slices.Index(favs, gameID); i >= 0 {
		m.favorites[userID] = slices.Delete(favs, i, i+1)
		return false, nil
	}
	m.favorites[userID] = append(favs, gameID)
	return true, nil
}

func (m *MemoryStore) Rating(_ context.Context, userID, gameID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ratings[userID][gameID], nil
}

func (m *MemoryStore) Ratings(_ context.Context, userID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.ratings[userID]))
	for k, v := range m.ratings[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetRating(_ context.Context, userID, gameID string, rating int) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	if !validRating(rating) {
		return ErrInvalidRating
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ratings[userID] == nil {
		m.ratings[userID] = make(map[string]int)
	}
	m.ratings[userID][gameID] = rating
	return nil
}

func (m *MemoryStore) AddAchievement(_ context.Context, userID, gameID string, a protocol.GameAchievement) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := gameKey(userID, gameID)
	for _, existing := range m.achievements[key] {
		if existing.ID == a.ID {
			return false, nil
		}
	}
	m.achievements[key] = append(m.achievements[key], a)
	return true, nil
}

func (m *MemoryStore) Achievements(_ context.Context, userID, gameID string) ([]protocol.GameAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.achievements[gameKey(userID, gameID)])
	if out == nil {
		out = []protocol.GameAchievement{}
	}
	return out, nil
}

func (m *MemoryStore) SetProgress(_ context.Context, userID, gameID string, snapshot json.RawMessage) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[gameKey(userID, gameID)] = slices.Clone(snapshot)
	return nil
}

func (m *MemoryStore) Progress(_ context.Context, userID, gameID string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.progress[gameKey(userID, gameID)]), nil
}

func (m *MemoryStore) SetUserInfo(_ context.Context, info protocol.UserInfo) error {
	if info.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[info.ID] = info
	return nil
}

func (m *MemoryStore) UserInfo(_ context.Context, userID string) (*protocol.UserInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (m *MemoryStore) Close() error { return nil }
