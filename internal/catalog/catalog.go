package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"
)

var ErrNotFound = errors.New("game not found")

type Rating struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

type Game struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Category     []string          `json:"category,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Features     []string          `json:"features,omitempty"`
	Instructions map[string]string `json:"instructions,omitempty"`
	URL          string            `json:"url,omitempty"`
	Thumbnail    string            `json:"thumbnail,omitempty"`
	Rating       *Rating           `json:"rating,omitempty"`
	Popularity   float64           `json:"popularity,omitempty"`
	AddedDate    string            `json:"addedDate,omitempty"`
	ComingSoon   bool              `json:"comingSoon,omitempty"`
}

// Playable reports whether the game has a frame address to load.
func (g Game) Playable() bool {
	return g.URL != "" && g.URL != "#"
}

func (g Game) score() float64 {
	if g.Rating == nil {
		return 0
	}
	return g.Rating.Score
}

func (g Game) added() time.Time {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, g.AddedDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

type Catalog struct {
	games []Game
	byID  map[string]int
}

func New(games []Game) *Catalog {
	c := &Catalog{games: slices.Clone(games), byID: make(map[string]int, len(games))}
	for i, g := range c.games {
		c.byID[g.ID] = i
	}
	return c
}

// Load reads a games.json document from a file path or an http(s) URL.
func Load(ctx context.Context, src string) (*Catalog, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err = fetch(ctx, src)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog failed: %w", err)
	}
	var games []Game
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("parse catalog failed: %w", err)
	}
	return New(games), nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Catalog) Len() int { return len(c.games) }

func (c *Catalog) All() []Game { return slices.Clone(c.games) }

func (c *Catalog) Game(id string) (Game, error) {
	i, ok := c.byID[id]
	if !ok {
		return Game{}, ErrNotFound
	}
	return c.games[i], nil
}

// Related returns up to n other games sharing at least one category, in
// random order.
func (c *Catalog) Related(id string, n int) []Game {
	g, err := c.Game(id)
	if err != nil || len(g.Category) == 0 || n <= 0 {
		return []Game{}
	}
	var related []Game
	for _, other := range c.games {
		if other.ID == g.ID {
			continue
		}
		if slices.ContainsFunc(other.Category, func(cat string) bool { return slices.Contains(g.Category, cat) }) {
			related = append(related, other)
		}
	}
	rand.Shuffle(len(related), func(i, j int) { related[i], related[j] = related[j], related[i] })
	if len(related) > n {
		related = related[:n]
	}
	if related == nil {
		related = []Game{}
	}
	return related
}
