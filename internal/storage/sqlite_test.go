package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/trendsync/internal/trend"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func testRows(n int) []trend.Row {
	rows := make([]trend.Row, n)
	for i := range rows {
		rows[i] = trend.Row{
			Platform: trend.Platform,
			Item: trend.Item{
				ID:        fmt.Sprintf("id-%02d", i+1),
				Rank:      i + 1,
				Title:     fmt.Sprintf("Song %d", i+1),
				Author:    "Artist",
				PlayCount: int64(1000 * (i + 1)),
			},
		}
	}
	return rows
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 4 {
		t.Fatalf("applied migrations = %v, want 4", versions)
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_audio_trends_rank", "idx_audio_trends_genre", "idx_audio_trends_vibe", "idx_pipeline_runs_started"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestCommitSnapshot_IdempotentUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rows := testRows(3)

	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 1000}); err != nil {
		t.Fatalf("first CommitSnapshot: %v", err)
	}
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 2000}); err != nil {
		t.Fatalf("second CommitSnapshot: %v", err)
	}

	if got := countRows(t, s, "audio_trends"); got != 3 {
		t.Errorf("audio_trends rows = %d, want 3", got)
	}
	if got := countRows(t, s, "audio_trend_history"); got != 6 {
		t.Errorf("audio_trend_history rows = %d, want 6", got)
	}

	list, err := s.ListTrends(ctx, TrendFilter{Platform: trend.Platform})
	if err != nil {
		t.Fatalf("ListTrends: %v", err)
	}
	for _, r := range list {
		if r.UpdatedAt != 2000 {
			t.Errorf("%s updated_at = %d, want 2000", r.ID, r.UpdatedAt)
		}
	}
}

func TestCommitSnapshot_UpdatesFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := testRows(1)
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 1}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	rows[0].Rank = 7
	rows[0].PlayCount = 9999
	rows[0].GrowthRate = floatPtr(-12.5)
	rows[0].Genre = strPtr("Hip-Hop")
	rows[0].Vibe = strPtr("gym")
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 2}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	got, err := s.ListTrends(ctx, TrendFilter{Platform: trend.Platform, Genre: "hip-hop"})
	if err != nil {
		t.Fatalf("ListTrends: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	r := got[0]
	if r.Rank != 7 || r.PlayCount != 9999 {
		t.Errorf("rank/play_count = %d/%d, want 7/9999", r.Rank, r.PlayCount)
	}
	if r.GrowthRate == nil || *r.GrowthRate != -12.5 {
		t.Errorf("GrowthRate = %v, want -12.5", r.GrowthRate)
	}
	if r.Genre == nil || *r.Genre != "Hip-Hop" {
		t.Errorf("Genre = %v, want Hip-Hop", r.Genre)
	}
}

func TestCommitSnapshot_AtomicOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: testRows(1), SnapshotAt: 5}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	// id-01 already has a snapshot at 5; it is written last so the failure
	// happens after id-03 and id-02 were staged.
	rows := testRows(3)
	rows[0], rows[2] = rows[2], rows[0]
	err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 5})
	if err == nil {
		t.Fatal("expected error on duplicate history snapshot")
	}

	if got := countRows(t, s, "audio_trends"); got != 1 {
		t.Errorf("audio_trends rows = %d, want 1 (rolled back)", got)
	}
	if got := countRows(t, s, "audio_trend_history"); got != 1 {
		t.Errorf("audio_trend_history rows = %d, want 1 (rolled back)", got)
	}
}

func TestCommitSnapshot_Reload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: testRows(5), SnapshotAt: 1}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: testRows(2), SnapshotAt: 2, Reload: true}); err != nil {
		t.Fatalf("CommitSnapshot reload: %v", err)
	}

	if got := countRows(t, s, "audio_trends"); got != 2 {
		t.Errorf("audio_trends rows = %d, want 2 after reload", got)
	}
	if got := countRows(t, s, "audio_trend_history"); got != 7 {
		t.Errorf("audio_trend_history rows = %d, want 7 (history is never deleted)", got)
	}
}

func TestLatestSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := testRows(2)
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 100}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}
	rows[0].PlayCount = 5000
	rows[0].Rank = 2
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows[:1], SnapshotAt: 200}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	got, err := s.LatestSnapshots(ctx, trend.Platform, []string{"id-01", "id-02", "id-missing"})
	if err != nil {
		t.Fatalf("LatestSnapshots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(got))
	}
	if snap := got["id-01"]; snap.SnapshotAt != 200 || snap.PlayCount != 5000 || snap.Rank != 2 {
		t.Errorf("id-01 = %+v, want latest snapshot at 200", snap)
	}
	if snap := got["id-02"]; snap.SnapshotAt != 100 {
		t.Errorf("id-02 snapshot_at = %d, want 100", snap.SnapshotAt)
	}
	if _, ok := got["id-missing"]; ok {
		t.Error("unexpected snapshot for id-missing")
	}
}

func TestExistingTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := testRows(2)
	rows[0].Genre = strPtr("pop")
	rows[0].Vibe = strPtr("hype")
	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: 1}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	got, err := s.ExistingTags(ctx, trend.Platform, []string{"id-01", "id-02", "id-03"})
	if err != nil {
		t.Fatalf("ExistingTags: %v", err)
	}
	if got["id-01"] != (trend.Tags{Genre: "pop", Vibe: "hype"}) {
		t.Errorf("id-01 tags = %+v, want pop/hype", got["id-01"])
	}
	if tags, ok := got["id-02"]; !ok || tags != (trend.Tags{}) {
		t.Errorf("id-02 tags = %+v (present %v), want empty", tags, ok)
	}
	if _, ok := got["id-03"]; ok {
		t.Error("id-03 should be absent")
	}
}

func TestEmptyIDLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snaps, err := s.LatestSnapshots(ctx, trend.Platform, nil)
	if err != nil || len(snaps) != 0 {
		t.Errorf("LatestSnapshots(nil) = %v, %v", snaps, err)
	}
	tags, err := s.ExistingTags(ctx, trend.Platform, nil)
	if err != nil || len(tags) != 0 {
		t.Errorf("ExistingTags(nil) = %v, %v", tags, err)
	}
}

func TestStaleTrends_PrefersCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: testRows(3), SnapshotAt: 1}); err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	got, err := s.StaleTrends(ctx, trend.Platform, 50)
	if err != nil {
		t.Fatalf("StaleTrends: %v", err)
	}
	if len(got) != 3 || got[0].ID != "id-01" {
		t.Errorf("StaleTrends without cache = %+v, want 3 rows by rank", got)
	}

	cached := []trend.Item{{ID: "c1", Rank: 1, Title: "Cached"}, {ID: "c2", Rank: 2}}
	if err := s.SaveAcquisition(ctx, trend.Platform, "secondary", cached); err != nil {
		t.Fatalf("SaveAcquisition: %v", err)
	}
	got, err = s.StaleTrends(ctx, trend.Platform, 1)
	if err != nil {
		t.Fatalf("StaleTrends: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" || got[0].Title != "Cached" {
		t.Errorf("StaleTrends with cache = %+v, want [c1]", got)
	}
}

func TestStaleTrends_Empty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.StaleTrends(context.Background(), trend.Platform, 50)
	if err != nil {
		t.Fatalf("StaleTrends: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d items, want 0", len(got))
	}
}

func TestHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := testRows(1)
	for i := int64(1); i <= 3; i++ {
		rows[0].PlayCount = 100 * i
		if err := s.CommitSnapshot(ctx, Commit{Platform: trend.Platform, Rows: rows, SnapshotAt: i}); err != nil {
			t.Fatalf("CommitSnapshot %d: %v", i, err)
		}
	}

	got, err := s.History(ctx, trend.Platform, "id-01", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].SnapshotAt != 3 || got[1].SnapshotAt != 2 {
		t.Errorf("History = %+v, want snapshots 3,2", got)
	}

	if _, err := s.History(ctx, trend.Platform, "nope", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRecordAndRecentRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		r := Run{
			ID:        fmt.Sprintf("run-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    "success",
			Count:     i,
			Source:    "primary",
		}
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	got, err := s.RecentRuns(ctx, 3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d runs, want 3", len(got))
	}
	if got[0].ID != "run-4" {
		t.Errorf("first run = %q, want run-4", got[0].ID)
	}
	if !got[0].StartedAt.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("StartedAt = %v, want %v", got[0].StartedAt, base.Add(4*time.Hour))
	}
}

func TestHashtags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tags := []Hashtag{
		{Tag: "dance", Rank: 2, FetchedAt: 1},
		{Tag: "fyp", Rank: 1, FetchedAt: 1},
	}
	if err := s.SaveHashtags(ctx, trend.Platform, tags); err != nil {
		t.Fatalf("SaveHashtags: %v", err)
	}
	tags[0].Rank = 3
	if err := s.SaveHashtags(ctx, trend.Platform, tags[:1]); err != nil {
		t.Fatalf("SaveHashtags: %v", err)
	}

	got, err := s.ListHashtags(ctx, trend.Platform, 10)
	if err != nil {
		t.Fatalf("ListHashtags: %v", err)
	}
	if len(got) != 2 || got[0].Tag != "fyp" || got[1].Rank != 3 {
		t.Errorf("ListHashtags = %+v", got)
	}
}

func TestLoadMigrations(t *testing.T) {
	migs, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migs) != 4 {
		t.Fatalf("migrations = %d, want 4", len(migs))
	}
	for i, m := range migs {
		if m.version != i+1 {
			t.Errorf("migrations[%d].version = %d, want %d", i, m.version, i+1)
		}
	}
}
