package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/trendsync/internal/trend"
)

// Store wraps a SQLite database holding current trends, their history, the
// acquisition cache, pipeline runs and hashtags.
type Store struct {
	db *sql.DB
}

// Open opens trendsync.db inside dataDir, creating both when missing, and
// brings the schema up to date. dataDir ":memory:" gives a private in-memory
// database for tests.
func Open(dataDir string) (*Store, error) {
	path := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dataDir, "trendsync.db")
	}

	// Pragmas ride on the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One writer at a time; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AppliedMigrations lists recorded schema versions, lowest first.
func (s *Store) AppliedMigrations() ([]int, error) {
	return appliedVersions(context.Background(), s.db)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(",?", n-1)
}

func idArgs(platform string, ids []string) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, platform)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// --- Trends ---

// LatestSnapshots returns the most recent history entry for each of ids that
// has one, keyed by id, in a single query.
func (s *Store) LatestSnapshots(ctx context.Context, platform string, ids []string) (map[string]trend.Snapshot, error) {
	out := make(map[string]trend.Snapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT h.id, h.play_count, h.rank, h.snapshot_at
		FROM audio_trend_history h
		JOIN (
			SELECT id, MAX(snapshot_at) AS latest
			FROM audio_trend_history
			WHERE platform = ? AND id IN (` + placeholders(len(ids)) + `)
			GROUP BY id
		) l ON h.id = l.id AND h.snapshot_at = l.latest
		WHERE h.platform = ?`
	args := append(idArgs(platform, ids), platform)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap := trend.Snapshot{Platform: platform}
		if err := rows.Scan(&snap.ID, &snap.PlayCount, &snap.Rank, &snap.SnapshotAt); err != nil {
			return nil, err
		}
		out[snap.ID] = snap
	}
	return out, rows.Err()
}

// ExistingTags returns the stored genre/vibe for each of ids that has a
// current-state row. NULL columns come back as empty strings.
func (s *Store) ExistingTags(ctx context.Context, platform string, ids []string) (map[string]trend.Tags, error) {
	out := make(map[string]trend.Tags, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, genre, vibe FROM audio_trends WHERE platform = ? AND id IN (`+placeholders(len(ids))+`)`,
		idArgs(platform, ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying existing tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var genre, vibe sql.NullString
		if err := rows.Scan(&id, &genre, &vibe); err != nil {
			return nil, err
		}
		out[id] = trend.Tags{Genre: genre.String, Vibe: vibe.String}
	}
	return out, rows.Err()
}

const upsertTrendSQL = `
	INSERT INTO audio_trends (platform, id, rank, title, author, play_count, cover_url, growth_rate, genre, vibe, genre_lower, vibe_lower, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(platform, id) DO UPDATE SET
		rank = excluded.rank,
		title = excluded.title,
		author = excluded.author,
		play_count = excluded.play_count,
		cover_url = excluded.cover_url,
		growth_rate = excluded.growth_rate,
		genre = excluded.genre,
		vibe = excluded.vibe,
		genre_lower = excluded.genre_lower,
		vibe_lower = excluded.vibe_lower,
		updated_at = excluded.updated_at`

const insertHistorySQL = `
	INSERT INTO audio_trend_history (platform, id, play_count, rank, snapshot_at)
	VALUES (?, ?, ?, ?, ?)`

// CommitSnapshot writes every row of c as an upsert plus a history append in
// one transaction. Either all statements apply or none do.
func (s *Store) CommitSnapshot(ctx context.Context, c Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback()

	if c.Reload {
		if _, err := tx.ExecContext(ctx, `DELETE FROM audio_trends WHERE platform = ?`, c.Platform); err != nil {
			return fmt.Errorf("reloading platform %s: %w", c.Platform, err)
		}
	}

	upsert, err := tx.PrepareContext(ctx, upsertTrendSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer upsert.Close()

	history, err := tx.PrepareContext(ctx, insertHistorySQL)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer history.Close()

	for _, r := range c.Rows {
		if _, err := upsert.ExecContext(ctx,
			c.Platform, r.ID, r.Rank, r.Title, r.Author, r.PlayCount, r.CoverURL,
			r.GrowthRate, r.Genre, r.Vibe, lowerPtr(r.Genre), lowerPtr(r.Vibe), c.SnapshotAt,
		); err != nil {
			return fmt.Errorf("upserting trend %s: %w", r.ID, err)
		}
		if _, err := history.ExecContext(ctx, c.Platform, r.ID, r.PlayCount, r.Rank, c.SnapshotAt); err != nil {
			return fmt.Errorf("appending history for %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// SaveAcquisition replaces the cached copy of the platform's last successful batch.
func (s *Store) SaveAcquisition(ctx context.Context, platform, source string, items []trend.Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding acquisition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO acquisition_cache (platform, source, payload, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET source = excluded.source, payload = excluded.payload, cached_at = excluded.cached_at`,
		platform, source, string(payload), time.Now().UnixMilli(),
	)
	return err
}

// StaleTrends returns the last known-good batch: the cached acquisition when
// one exists, otherwise the current-state rows ordered by rank.
func (s *Store) StaleTrends(ctx context.Context, platform string, limit int) ([]trend.Item, error) {
	limit = limitOr(limit, trend.MaxItems)

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM acquisition_cache WHERE platform = ?`, platform).Scan(&payload)
	switch {
	case err == nil:
		var items []trend.Item
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, fmt.Errorf("decoding cached acquisition: %w", err)
		}
		if len(items) > 0 {
			if len(items) > limit {
				items = items[:limit]
			}
			return items, nil
		}
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("reading acquisition cache: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rank, title, author, play_count, cover_url
		FROM audio_trends WHERE platform = ? ORDER BY rank ASC LIMIT ?`, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stale trends: %w", err)
	}
	defer rows.Close()

	var items []trend.Item
	for rows.Next() {
		var it trend.Item
		if err := rows.Scan(&it.ID, &it.Rank, &it.Title, &it.Author, &it.PlayCount, &it.CoverURL); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListTrends returns current-state rows ordered by rank.
func (s *Store) ListTrends(ctx context.Context, f TrendFilter) ([]trend.Row, error) {
	query := `SELECT platform, id, rank, title, author, play_count, cover_url, growth_rate, genre, vibe, updated_at
		FROM audio_trends WHERE platform = ?`
	args := []any{f.Platform}
	if f.Genre != "" {
		query += ` AND genre_lower = ?`
		args = append(args, strings.ToLower(f.Genre))
	}
	if f.Vibe != "" {
		query += ` AND vibe_lower = ?`
		args = append(args, strings.ToLower(f.Vibe))
	}
	query += ` ORDER BY rank ASC LIMIT ?`
	args = append(args, limitOr(f.Limit, trend.MaxItems))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trends: %w", err)
	}
	defer rows.Close()

	var results []trend.Row
	for rows.Next() {
		var r trend.Row
		var growth sql.NullFloat64
		var genre, vibe sql.NullString
		if err := rows.Scan(&r.Platform, &r.ID, &r.Rank, &r.Title, &r.Author, &r.PlayCount, &r.CoverURL, &growth, &genre, &vibe, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if growth.Valid {
			r.GrowthRate = &growth.Float64
		}
		if genre.Valid {
			r.Genre = &genre.String
		}
		if vibe.Valid {
			r.Vibe = &vibe.String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// History returns up to limit snapshots of one trend, newest first.
// ErrNotFound is returned when the trend has no history at all.
func (s *Store) History(ctx context.Context, platform, id string, limit int) ([]trend.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT play_count, rank, snapshot_at FROM audio_trend_history
		WHERE platform = ? AND id = ? ORDER BY snapshot_at DESC LIMIT ?`,
		platform, id, limitOr(limit, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var results []trend.Snapshot
	for rows.Next() {
		snap := trend.Snapshot{Platform: platform, ID: id}
		if err := rows.Scan(&snap.PlayCount, &snap.Rank, &snap.SnapshotAt); err != nil {
			return nil, err
		}
		results = append(results, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results, nil
}

// --- Runs ---

func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, started_at, duration_ms, status, count, top_song, tags_generated, source, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.DurationMs, r.Status, r.Count,
		r.TopSong, r.TagsGenerated, r.Source, r.Error,
	)
	return err
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, status, count, top_song, tags_generated, source, error
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limitOr(limit, 20),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var startedAt string
		if err := rows.Scan(&r.ID, &startedAt, &r.DurationMs, &r.Status, &r.Count, &r.TopSong, &r.TagsGenerated, &r.Source, &r.Error); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		r.StartedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Hashtags ---

// SaveHashtags upserts the platform's hashtag ranking.
func (s *Store) SaveHashtags(ctx context.Context, platform string, tags []Hashtag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning hashtag transaction: %w", err)
	}
	defer tx.Rollback()

	for _, h := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hashtag_trends (platform, tag, rank, title, link, published_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(platform, tag) DO UPDATE SET
				rank = excluded.rank, title = excluded.title, link = excluded.link,
				published_at = excluded.published_at, fetched_at = excluded.fetched_at`,
			platform, h.Tag, h.Rank, h.Title, h.Link, h.PublishedAt, h.FetchedAt,
		); err != nil {
			return fmt.Errorf("upserting hashtag %s: %w", h.Tag, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListHashtags(ctx context.Context, platform string, limit int) ([]Hashtag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, rank, title, link, published_at, fetched_at FROM hashtag_trends
		WHERE platform = ? ORDER BY rank ASC LIMIT ?`, platform, limitOr(limit, trend.MaxItems),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Hashtag
	for rows.Next() {
		var h Hashtag
		if err := rows.Scan(&h.Tag, &h.Rank, &h.Title, &h.Link, &h.PublishedAt, &h.FetchedAt); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
