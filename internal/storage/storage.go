// Package storage persists current trend state, the append-only snapshot
// history, the acquisition cache, pipeline runs and hashtag rankings. SQLite
// is the default backend; Postgres is selected with the "postgres" driver.
package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/trendsync/internal/trend"
)

// Repository is implemented by Store and PGStore.
type Repository interface {
	LatestSnapshots(ctx context.Context, platform string, ids []string) (map[string]trend.Snapshot, error)
	ExistingTags(ctx context.Context, platform string, ids []string) (map[string]trend.Tags, error)
	CommitSnapshot(ctx context.Context, c Commit) error
	SaveAcquisition(ctx context.Context, platform, source string, items []trend.Item) error
	StaleTrends(ctx context.Context, platform string, limit int) ([]trend.Item, error)
	ListTrends(ctx context.Context, f TrendFilter) ([]trend.Row, error)
	History(ctx context.Context, platform, id string, limit int) ([]trend.Snapshot, error)
	RecordRun(ctx context.Context, r Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	SaveHashtags(ctx context.Context, platform string, tags []Hashtag) error
	ListHashtags(ctx context.Context, platform string, limit int) ([]Hashtag, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*PGStore)(nil)
)

// Connect opens the backend named by driver.
func Connect(ctx context.Context, driver, dataDir, dsn string) (Repository, error) {
	switch driver {
	case "", "sqlite":
		s, err := Open(dataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
