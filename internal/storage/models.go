package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/kalambet/trendsync/internal/trend"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Commit is one pipeline run's write set. Every row is stamped with
// SnapshotAt and gets a matching history entry. Reload deletes the
// platform's current-state rows first, inside the same transaction.
type Commit struct {
	Platform   string
	Rows       []trend.Row
	SnapshotAt int64
	Reload     bool
}

// TrendFilter narrows ListTrends. Genre and Vibe match case-insensitively.
type TrendFilter struct {
	Platform string
	Genre    string
	Vibe     string
	Limit    int
}

type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
	Status        string    `json:"status"`
	Count         int       `json:"count"`
	TopSong       string    `json:"top_song"`
	TagsGenerated int       `json:"tags_generated"`
	Source        string    `json:"source"`
	Error         string    `json:"error,omitempty"`
}

type Hashtag struct {
	Tag         string `json:"tag"`
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt int64  `json:"published_at"`
	FetchedAt   int64  `json:"fetched_at"`
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	l := strings.ToLower(*s)
	return &l
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
