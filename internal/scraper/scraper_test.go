package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type mockBrowser struct {
	html        string
	err         error
	gotURL      string
	gotSelector string
}

func (m *mockBrowser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	m.gotURL = url
	m.gotSelector = waitSelector
	return m.html, m.err
}

const rowsPage = `<html><body><div class="list">
<div data-e2e="music-item">
  <span data-e2e="music-rank">1</span>
  <img src="https://img/c1.jpg">
  <a href="/music/Espresso-7339012345678901234"><span data-e2e="music-title">Espresso</span></a>
  <span data-e2e="music-author">Sabrina Carpenter</span>
  <span data-e2e="video-count">1.2M</span>
</div>
<div data-e2e="music-item">
  <span data-e2e="music-rank">2</span>
  <span data-e2e="music-title">No   Link Song</span>
  <span data-e2e="music-author">Someone</span>
  <span data-e2e="video-count">850K</span>
</div>
<div data-e2e="music-item">
  <span data-e2e="music-rank">3</span>
  <a href="/music/Espresso-7339012345678901234"><span data-e2e="music-title">Espresso (dup)</span></a>
</div>
</div></body></html>`

func TestExtract_Rows(t *testing.T) {
	items, err := Extract(rowsPage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2 (duplicate id dropped)", len(items))
	}

	first := items[0]
	if first.ID != "7339012345678901234" {
		t.Errorf("ID = %q, want id from music link", first.ID)
	}
	if first.Title != "Espresso" || first.Author != "Sabrina Carpenter" {
		t.Errorf("title/author = %q/%q", first.Title, first.Author)
	}
	if first.PlayCount != 1_200_000 || first.Rank != 1 || first.CoverURL != "https://img/c1.jpg" {
		t.Errorf("items[0] = %+v", first)
	}

	second := items[1]
	if second.Title != "No Link Song" {
		t.Errorf("Title = %q, want whitespace collapsed", second.Title)
	}
	if !strings.HasPrefix(second.ID, "no-link-song-someone-") {
		t.Errorf("ID = %q, want synthesized id", second.ID)
	}
	if second.PlayCount != 850_000 || second.Rank != 2 {
		t.Errorf("items[1] = %+v", second)
	}
}

func TestExtract_LinkFallback(t *testing.T) {
	page := `<html><body><ul>
<li><a href="/music/Song-A-7000000000000000001">Song A</a><span class="author-name">Artist A</span><span class="play-count">3K</span></li>
<li><a href="/music/Song-B-7000000000000000002">Song B</a></li>
</ul></body></html>`

	items, err := Extract(page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ID != "7000000000000000001" || items[0].Title != "Song A" || items[0].Author != "Artist A" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].PlayCount != 3000 {
		t.Errorf("PlayCount = %d, want 3000", items[0].PlayCount)
	}
	if items[1].Author != "Unknown" {
		t.Errorf("items[1].Author = %q, want Unknown", items[1].Author)
	}
}

func TestExtract_CapsAtFifty(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 70; i++ {
		fmt.Fprintf(&b, `<div data-e2e="music-item"><a href="/music/s-%d"><span data-e2e="music-title">t%d</span></a></div>`, 7000000000000000000+i, i)
	}
	b.WriteString("</body></html>")

	items, err := Extract(b.String())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 50 {
		t.Errorf("len(items) = %d, want 50", len(items))
	}
}

func TestExtract_RepeatedRowsDoNotUseUpCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 50; i++ {
		b.WriteString(`<div data-e2e="music-item"><a href="/music/same-7000000000000000000"><span data-e2e="music-title">same</span></a></div>`)
	}
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, `<div data-e2e="music-item"><a href="/music/s-%d"><span data-e2e="music-title">t%d</span></a></div>`, 7000000000000000000+i, i)
	}
	b.WriteString("</body></html>")

	items, err := Extract(b.String())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 11 {
		t.Fatalf("len(items) = %d, want 11", len(items))
	}
	if items[10].ID != "7000000000000000010" || items[10].Rank != 11 {
		t.Errorf("items[10] = %+v, want last unique row ranked 11", items[10])
	}
}

func TestScraper_Fetch(t *testing.T) {
	b := &mockBrowser{html: rowsPage}
	s := New(b, "")

	items, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
	if b.gotURL != DefaultURL {
		t.Errorf("url = %q, want default", b.gotURL)
	}
	if !strings.Contains(b.gotSelector, `[data-e2e="music-item"]`) {
		t.Errorf("wait selector = %q, want row selectors", b.gotSelector)
	}
}

func TestScraper_FetchErrors(t *testing.T) {
	boom := errors.New("browser crashed")
	s := New(&mockBrowser{err: boom}, "https://example.test")
	if _, err := s.Fetch(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped browser error", err)
	}

	s = New(&mockBrowser{html: "<html><body>verify you are human</body></html>"}, "https://example.test")
	if _, err := s.Fetch(context.Background()); !errors.Is(err, ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
}
