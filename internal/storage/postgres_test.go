package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/kalambet/trendsync/internal/trend"
)

// openTestPG connects to TRENDSYNC_TEST_POSTGRES_DSN and isolates the test
// under a random platform name.
func openTestPG(t *testing.T) (*PGStore, string) {
	t.Helper()
	dsn := os.Getenv("TRENDSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRENDSYNC_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	platform := "test-" + uuid.NewString()[:8]
	t.Cleanup(func() {
		ctx := context.Background()
		s.pool.Exec(ctx, `DELETE FROM audio_trends WHERE platform = $1`, platform)
		s.pool.Exec(ctx, `DELETE FROM audio_trend_history WHERE platform = $1`, platform)
		s.pool.Exec(ctx, `DELETE FROM acquisition_cache WHERE platform = $1`, platform)
		s.Close()
	})
	return s, platform
}

func TestPG_CommitSnapshotIdempotent(t *testing.T) {
	s, platform := openTestPG(t)
	ctx := context.Background()

	rows := testRows(3)
	rows[0].Genre = strPtr("Pop")
	for _, at := range []int64{1000, 2000} {
		if err := s.CommitSnapshot(ctx, Commit{Platform: platform, Rows: rows, SnapshotAt: at}); err != nil {
			t.Fatalf("CommitSnapshot(%d): %v", at, err)
		}
	}

	list, err := s.ListTrends(ctx, TrendFilter{Platform: platform})
	if err != nil {
		t.Fatalf("ListTrends: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("got %d rows, want 3", len(list))
	}

	hist, err := s.History(ctx, platform, "id-01", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("got %d history rows, want 2", len(hist))
	}

	snaps, err := s.LatestSnapshots(ctx, platform, []string{"id-01", "id-02", "id-03"})
	if err != nil {
		t.Fatalf("LatestSnapshots: %v", err)
	}
	if snaps["id-02"].SnapshotAt != 2000 {
		t.Errorf("id-02 latest = %d, want 2000", snaps["id-02"].SnapshotAt)
	}

	byGenre, err := s.ListTrends(ctx, TrendFilter{Platform: platform, Genre: "POP"})
	if err != nil {
		t.Fatalf("ListTrends genre: %v", err)
	}
	if len(byGenre) != 1 || byGenre[0].ID != "id-01" {
		t.Errorf("genre filter = %+v", byGenre)
	}
}

func TestPG_StaleTrendsFromCache(t *testing.T) {
	s, platform := openTestPG(t)
	ctx := context.Background()

	items := []trend.Item{{ID: "x", Rank: 1, Title: "X"}}
	if err := s.SaveAcquisition(ctx, platform, "primary", items); err != nil {
		t.Fatalf("SaveAcquisition: %v", err)
	}
	got, err := s.StaleTrends(ctx, platform, 10)
	if err != nil {
		t.Fatalf("StaleTrends: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("StaleTrends = %+v", got)
	}
}
