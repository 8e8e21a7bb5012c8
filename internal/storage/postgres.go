package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalambet/trendsync/internal/trend"
)

//go:embed postgres.sql
var postgresSchema string

// PGStore is the Postgres-backed equivalent of Store. Hosted Postgres
// (including Supabase) is reached through the same DSN.
type PGStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns < 2 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	// No arguments, so pgx runs the multi-statement schema over the simple protocol.
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) LatestSnapshots(ctx context.Context, platform string, ids []string) (map[string]trend.Snapshot, error) {
	out := make(map[string]trend.Snapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (id) id, play_count, rank, snapshot_at
		FROM audio_trend_history
		WHERE platform = $1 AND id = ANY($2)
		ORDER BY id, snapshot_at DESC`, platform, ids)
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

func (s *PGStore) ExistingTags(ctx context.Context, platform string, ids []string) (map[string]trend.Tags, error) {
	out := make(map[string]trend.Tags, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(genre, ''), COALESCE(vibe, '') FROM audio_trends WHERE platform = $1 AND id = ANY($2)`,
		platform, ids)
	if err != nil {
		return nil, fmt.Errorf("querying existing tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var t trend.Tags
		if err := rows.Scan(&id, &t.Genre, &t.Vibe); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

// CommitSnapshot sends the whole write set as one pgx.Batch inside a transaction.
func (s *PGStore) CommitSnapshot(ctx context.Context, c Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	if c.Reload {
		b.Queue(`DELETE FROM audio_trends WHERE platform = $1`, c.Platform)
	}
	for _, r := range c.Rows {
		b.Queue(`
			INSERT INTO audio_trends (platform, id, rank, title, author, play_count, cover_url, growth_rate, genre, vibe, genre_lower, vibe_lower, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (platform, id) DO UPDATE SET
				rank = EXCLUDED.rank,
				title = EXCLUDED.title,
				author = EXCLUDED.author,
				play_count = EXCLUDED.play_count,
				cover_url = EXCLUDED.cover_url,
				growth_rate = EXCLUDED.growth_rate,
				genre = EXCLUDED.genre,
				vibe = EXCLUDED.vibe,
				genre_lower = EXCLUDED.genre_lower,
				vibe_lower = EXCLUDED.vibe_lower,
				updated_at = EXCLUDED.updated_at`,
			c.Platform, r.ID, r.Rank, r.Title, r.Author, r.PlayCount, r.CoverURL,
			r.GrowthRate, r.Genre, r.Vibe, lowerPtr(r.Genre), lowerPtr(r.Vibe), c.SnapshotAt,
		)
		b.Queue(`
			INSERT INTO audio_trend_history (platform, id, play_count, rank, snapshot_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.Platform, r.ID, r.PlayCount, r.Rank, c.SnapshotAt,
		)
	}

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("executing batch statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func (s *PGStore) SaveAcquisition(ctx context.Context, platform, source string, items []trend.Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding acquisition: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO acquisition_cache (platform, source, payload, cached_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform) DO UPDATE SET source = EXCLUDED.source, payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at`,
		platform, source, payload, time.Now().UnixMilli(),
	)
	return err
}

func (s *PGStore) StaleTrends(ctx context.Context, platform string, limit int) ([]trend.Item, error) {
	limit = limitOr(limit, trend.MaxItems)

	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM acquisition_cache WHERE platform = $1`, platform).Scan(&payload)
	switch {
	case err == nil:
		var items []trend.Item
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, fmt.Errorf("decoding cached acquisition: %w", err)
		}
		if len(items) > 0 {
			if len(items) > limit {
				items = items[:limit]
			}
			return items, nil
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("reading acquisition cache: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, rank, title, author, play_count, cover_url
		FROM audio_trends WHERE platform = $1 ORDER BY rank ASC LIMIT $2`, platform, limit)
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

func (s *PGStore) ListTrends(ctx context.Context, f TrendFilter) ([]trend.Row, error) {
	query := `SELECT platform, id, rank, title, author, play_count, cover_url, growth_rate, genre, vibe, updated_at
		FROM audio_trends WHERE platform = $1`
	args := []any{f.Platform}
	if f.Genre != "" {
		args = append(args, strings.ToLower(f.Genre))
		query += fmt.Sprintf(` AND genre_lower = $%d`, len(args))
	}
	if f.Vibe != "" {
		args = append(args, strings.ToLower(f.Vibe))
		query += fmt.Sprintf(` AND vibe_lower = $%d`, len(args))
	}
	args = append(args, limitOr(f.Limit, trend.MaxItems))
	query += fmt.Sprintf(` ORDER BY rank ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trends: %w", err)
	}
	defer rows.Close()

	var results []trend.Row
	for rows.Next() {
		var r trend.Row
		if err := rows.Scan(&r.Platform, &r.ID, &r.Rank, &r.Title, &r.Author, &r.PlayCount, &r.CoverURL, &r.GrowthRate, &r.Genre, &r.Vibe, &r.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PGStore) History(ctx context.Context, platform, id string, limit int) ([]trend.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT play_count, rank, snapshot_at FROM audio_trend_history
		WHERE platform = $1 AND id = $2 ORDER BY snapshot_at DESC LIMIT $3`,
		platform, id, limitOr(limit, 100))
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

func (s *PGStore) RecordRun(ctx context.Context, r Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, started_at, duration_ms, status, count, top_song, tags_generated, source, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.StartedAt.UTC(), r.DurationMs, r.Status, r.Count, r.TopSong, r.TagsGenerated, r.Source, r.Error,
	)
	return err
}

func (s *PGStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, duration_ms, status, count, top_song, tags_generated, source, error
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.DurationMs, &r.Status, &r.Count, &r.TopSong, &r.TagsGenerated, &r.Source, &r.Error); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PGStore) SaveHashtags(ctx context.Context, platform string, tags []Hashtag) error {
	if len(tags) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, h := range tags {
		b.Queue(`
			INSERT INTO hashtag_trends (platform, tag, rank, title, link, published_at, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (platform, tag) DO UPDATE SET
				rank = EXCLUDED.rank, title = EXCLUDED.title, link = EXCLUDED.link,
				published_at = EXCLUDED.published_at, fetched_at = EXCLUDED.fetched_at`,
			platform, h.Tag, h.Rank, h.Title, h.Link, h.PublishedAt, h.FetchedAt,
		)
	}
	// A batch sent outside an explicit transaction runs as one implicit transaction.
	return s.pool.SendBatch(ctx, b).Close()
}

func (s *PGStore) ListHashtags(ctx context.Context, platform string, limit int) ([]Hashtag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tag, rank, title, link, published_at, fetched_at FROM hashtag_trends
		WHERE platform = $1 ORDER BY rank ASC LIMIT $2`, platform, limitOr(limit, trend.MaxItems))
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
