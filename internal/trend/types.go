// Package trend holds the audio-trend data model shared by acquisition,
// persistence and the pipeline.
package trend

// Platform is the only platform this service ingests.
const Platform = "tiktok"

// MaxItems caps every acquired batch.
const MaxItems = 50

// Unknown is stored when a title or author cannot be extracted.
const Unknown = "Unknown"

// Item is one ranked audio entry as acquired from any source.
type Item struct {
	ID        string `json:"id"`
	Rank      int    `json:"rank"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	PlayCount int64  `json:"play_count"`
	CoverURL  string `json:"cover_url,omitempty"`
}

// Tags is the genre/vibe pair attached to a trend.
type Tags struct {
	Genre string `json:"genre"`
	Vibe  string `json:"vibe"`
}

// Row is the current-state record for one (platform, id).
// GrowthRate, Genre and Vibe are nil when unknown.
type Row struct {
	Platform string `json:"platform"`
	Item
	GrowthRate *float64 `json:"growth_rate"`
	Genre      *string  `json:"genre"`
	Vibe       *string  `json:"vibe"`
	UpdatedAt  int64    `json:"updated_at"`
}

// Snapshot is one append-only history entry.
type Snapshot struct {
	Platform   string `json:"platform"`
	ID         string `json:"id"`
	PlayCount  int64  `json:"play_count"`
	Rank       int    `json:"rank"`
	SnapshotAt int64  `json:"snapshot_at"`
}
