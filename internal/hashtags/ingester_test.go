package hashtags

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/trendsync/internal/storage"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Trending hashtags</title>
  <item>
    <title>Everyone is doing the #GlowUp challenge</title>
    <link>https://example.com/glowup</link>
    <pubDate>Mon, 05 Jan 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Dance trend</title>
    <category>#Dance</category>
    <link>https://example.com/dance</link>
  </item>
  <item>
    <title>Another #glowup post</title>
    <link>https://example.com/glowup-2</link>
  </item>
  <item>
    <title>Cozy Autumn Vlogs</title>
    <link>https://example.com/cozy</link>
  </item>
</channel>
</rss>`

type fakeStore struct {
	platform string
	tags     []storage.Hashtag
	err      error
}

func (f *fakeStore) SaveHashtags(ctx context.Context, platform string, tags []storage.Hashtag) error {
	f.platform = platform
	f.tags = tags
	return f.err
}

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngest(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, testFeed)
	store := &fakeStore{}

	n, err := New(srv.URL, store).Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 3 {
		t.Fatalf("stored %d tags, want 3", n)
	}
	if store.platform != "tiktok" {
		t.Errorf("platform = %q, want tiktok", store.platform)
	}

	want := []string{"glowup", "dance", "cozy-autumn-vlogs"}
	for i, w := range want {
		if store.tags[i].Tag != w {
			t.Errorf("tags[%d] = %q, want %q", i, store.tags[i].Tag, w)
		}
		if store.tags[i].Rank != i+1 {
			t.Errorf("tags[%d].Rank = %d, want %d", i, store.tags[i].Rank, i+1)
		}
	}
	if store.tags[0].PublishedAt == 0 {
		t.Error("expected parsed pubDate on first entry")
	}
}

func TestIngest_NotConfigured(t *testing.T) {
	store := &fakeStore{}
	n, err := New("", store).Ingest(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Ingest = %d, %v; want 0, nil", n, err)
	}
	if store.tags != nil {
		t.Error("store should not be called")
	}
}

func TestIngest_FeedError(t *testing.T) {
	srv := newFeedServer(t, http.StatusInternalServerError, "oops")
	if _, err := New(srv.URL, &fakeStore{}).Ingest(context.Background()); err == nil {
		t.Fatal("expected error for failing feed")
	}
}

func TestIngest_StoreError(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, testFeed)
	_, err := New(srv.URL, &fakeStore{err: errors.New("disk full")}).Ingest(context.Background())
	if err == nil {
		t.Fatal("expected store error")
	}
}
