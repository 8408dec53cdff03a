package catalog

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

const (
	CategoryAll = "all"

	SortPopularity = "popularity"
	SortRating     = "rating"
	SortNewest     = "newest"

	DefaultPerPage = 9
	MaxPerPage     = 100
)

type Query struct {
	Category string
	Search   string
	Sort     string
	Page     int
	PerPage  int
}

func (q Query) normalized() Query {
	if q.Category == "" {
		q.Category = CategoryAll
	}
	if q.Sort == "" {
		q.Sort = SortPopularity
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// PageItem is one entry of a pagination bar. Ellipsis items have Page 0.
type PageItem struct {
	Page     int  `json:"page,omitempty"`
	Current  bool `json:"current,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

type Result struct {
	Games      []Game     `json:"games"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perPage"`
	TotalPages int        `json:"totalPages"`
	Pages      []PageItem `json:"pages"`
}

// Find filters, sorts and pages the catalog.
func (c *Catalog) Find(q Query) Result {
	q = q.normalized()
	fold := cases.Fold()
	term := fold.String(strings.TrimSpace(q.Search))

	var matched []Game
	for _, g := range c.games {
		if q.Category != CategoryAll && !slices.Contains(g.Category, q.Category) {
			continue
		}
		if term != "" && !matches(fold, g, term) {
			continue
		}
		matched = append(matched, g)
	}
	sortGames(matched, q.Sort)

	totalPages := (len(matched) + q.PerPage - 1) / q.PerPage
	page := []Game{}
	if q.Page <= totalPages {
		start := (q.Page - 1) * q.PerPage
		end := min(start+q.PerPage, len(matched))
		page = matched[start:end]
	}
	return Result{
		Games:      page,
		Total:      len(matched),
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: totalPages,
		Pages:      Pages(q.Page, totalPages),
	}
}

func matches(fold cases.Caser, g Game, term string) bool {
	if strings.Contains(fold.String(g.Name), term) || strings.Contains(fold.String(g.Description), term) {
		return true
	}
	for _, tag := range g.Tags {
		if strings.Contains(fold.String(tag), term) {
			return true
		}
	}
	return false
}

func sortGames(games []Game, by string) {
	switch by {
	case SortPopularity:
		slices.SortStableFunc(games, func(a, b Game) int { return cmpDesc(a.Popularity, b.Popularity) })
	case SortRating:
		slices.SortStableFunc(games, func(a, b Game) int { return cmpDesc(a.score(), b.score()) })
	case SortNewest:
		slices.SortStableFunc(games, func(a, b Game) int { return b.added().Compare(a.added()) })
	}
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// Pages builds the pagination bar. Up to five pages are listed in full;
// beyond that the first, last and current±1 pages are shown with an
// ellipsis at current±2. A single page yields no bar.
func Pages(current, total int) []PageItem {
	if total <= 1 {
		return []PageItem{}
	}
	var items []PageItem
	for i := 1; i <= total; i++ {
		switch {
		case total <= 5, i == 1, i == total, i >= current-1 && i <= current+1:
			items = append(items, PageItem{Page: i, Current: i == current})
		case i == current-2 || i == current+2:
			items = append(items, PageItem{Ellipsis: true})
		}
	}
	return items
}

// ParseQuery reads category, search, sort and page from URL query values.
func ParseQuery(get func(string) string) Query {
	q := Query{
		Category: get("category"),
		Search:   get("search"),
		Sort:     get("sort"),
	}
	if p, err := strconv.Atoi(get("page")); err == nil {
		q.Page = p
	}
	if n, err := strconv.Atoi(get("perPage")); err == nil {
		q.PerPage = n
	}
	return q
}
