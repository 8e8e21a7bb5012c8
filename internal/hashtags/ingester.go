// Package hashtags ingests a hashtag ranking from an RSS/Atom feed. It is a
// side-channel of the pipeline: its failures never affect the run status.
package hashtags

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/kalambet/trendsync/internal/storage"
	"github.com/kalambet/trendsync/internal/trend"
)

const fetchTimeout = 20 * time.Second

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Store persists the ingested ranking.
type Store interface {
	SaveHashtags(ctx context.Context, platform string, tags []storage.Hashtag) error
}

// Ingester fetches a feed and stores one ranked hashtag per entry.
type Ingester struct {
	feedURL string
	store   Store
	parser  *gofeed.Parser
	now     func() time.Time
}

// New returns an Ingester reading feedURL into store. Feed requests time out
// after fetchTimeout.
func New(feedURL string, store Store) *Ingester {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: fetchTimeout}
	return &Ingester{feedURL: feedURL, store: store, parser: p, now: time.Now}
}

// Configured reports whether a feed URL is set.
func (i *Ingester) Configured() bool {
	return i != nil && i.feedURL != ""
}

// Ingest fetches the feed and saves the ranking, returning how many tags were stored.
func (i *Ingester) Ingest(ctx context.Context) (int, error) {
	if !i.Configured() {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := i.parser.ParseURLWithContext(i.feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", i.feedURL, err)
	}

	tags := Extract(feed.Items, i.now().UnixMilli())
	if len(tags) == 0 {
		return 0, nil
	}
	if err := i.store.SaveHashtags(ctx, trend.Platform, tags); err != nil {
		return 0, fmt.Errorf("saving hashtags: %w", err)
	}
	return len(tags), nil
}

// Extract maps feed entries to hashtags ranked by feed order, deduplicated
// and capped at trend.MaxItems. An entry's tag is its first category, else
// the first #tag in its title, else its slugified title.
func Extract(items []*gofeed.Item, fetchedAt int64) []storage.Hashtag {
	seen := make(map[string]bool)
	var out []storage.Hashtag
	for _, it := range items {
		if len(out) >= trend.MaxItems {
			break
		}
		tag := tagFor(it)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true

		var published int64
		if it.PublishedParsed != nil {
			published = it.PublishedParsed.UnixMilli()
		} else if it.UpdatedParsed != nil {
			published = it.UpdatedParsed.UnixMilli()
		}

		out = append(out, storage.Hashtag{
			Tag:         tag,
			Rank:        len(out) + 1,
			Title:       strings.TrimSpace(it.Title),
			Link:        it.Link,
			PublishedAt: published,
			FetchedAt:   fetchedAt,
		})
	}
	return out
}

func tagFor(it *gofeed.Item) string {
	for _, c := range it.Categories {
		if t := cleanTag(c); t != "" {
			return t
		}
	}
	if m := hashtagRe.FindStringSubmatch(it.Title); m != nil {
		return strings.ToLower(m[1])
	}
	return trend.Slugify(it.Title)
}

func cleanTag(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	return strings.ToLower(s)
}
