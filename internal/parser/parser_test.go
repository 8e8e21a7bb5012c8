package parser

import (
	"fmt"
	"strings"
	"testing"
)

func TestParse_JSONArrayWithAliases(t *testing.T) {
	body := `[
		{"id": "111111", "title": "Espresso", "author": "Sabrina Carpenter", "play_count": 1200000, "cover_url": "https://img/1.jpg"},
		{"music_id": 222222, "name": "Birds of a Feather", "artist": "Billie Eilish", "video_count": "850K", "cover": "https://img/2.jpg"},
		"not a record",
		{"rank": 9}
	]`

	items, strategy := New().Parse("application/json", []byte(body))
	if strategy != "json" {
		t.Fatalf("strategy = %q, want json", strategy)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	first := items[0]
	if first.ID != "111111" || first.Title != "Espresso" || first.Author != "Sabrina Carpenter" {
		t.Errorf("items[0] = %+v", first)
	}
	if first.PlayCount != 1200000 || first.CoverURL != "https://img/1.jpg" {
		t.Errorf("items[0] count/cover = %d/%q", first.PlayCount, first.CoverURL)
	}

	second := items[1]
	if second.ID != "222222" || second.Title != "Birds of a Feather" || second.Author != "Billie Eilish" {
		t.Errorf("items[1] = %+v", second)
	}
	if second.PlayCount != 850000 {
		t.Errorf("items[1].PlayCount = %d, want 850000", second.PlayCount)
	}
	if second.Rank != 2 {
		t.Errorf("items[1].Rank = %d, want 2", second.Rank)
	}
}

func TestParse_JSONEnvelope(t *testing.T) {
	body := `{"data": {"items": [{"id": "1234567", "title": "A", "author": "B", "rank": 4}]}}`
	items, _ := New().Parse("", []byte(body))
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Rank != 4 {
		t.Errorf("Rank = %d, want explicit rank 4", items[0].Rank)
	}
}

func TestParse_JSONMissingIDSynthesizes(t *testing.T) {
	body := `[{"title": "Espresso", "author": "Sabrina Carpenter"}]`
	items, _ := New().Parse("application/json", []byte(body))
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if !strings.HasPrefix(items[0].ID, "espresso-sabrina-carpenter-") {
		t.Errorf("ID = %q, want synthesized slug", items[0].ID)
	}
}

func TestParse_JSONCapAndDedupe(t *testing.T) {
	var recs []string
	for i := 0; i < 70; i++ {
		recs = append(recs, fmt.Sprintf(`{"id":"%d","title":"t%d","author":"a"}`, 1000000+i%60, i))
	}
	body := "[" + strings.Join(recs, ",") + "]"

	items, _ := New().Parse("application/json", []byte(body))
	if len(items) != 50 {
		t.Fatalf("len(items) = %d, want 50", len(items))
	}
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ID] {
			t.Fatalf("duplicate id %s", it.ID)
		}
		seen[it.ID] = true
	}
}

// Fifty copies of one id followed by ten distinct ids.
func repeatedThenUnique(format string) string {
	var parts []string
	for i := 0; i < 50; i++ {
		parts = append(parts, fmt.Sprintf(format, 7300000000000000000, 0))
	}
	for i := 1; i <= 10; i++ {
		parts = append(parts, fmt.Sprintf(format, 7300000000000000000+i, i))
	}
	return strings.Join(parts, "\n")
}

func TestParse_RepeatedIDsDoNotUseUpCap(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"json", "application/json", "[" + strings.ReplaceAll(repeatedThenUnique(`{"id":"%d","title":"t%d","author":"a"}`), "\n", ",") + "]"},
		{"fragment", "text/html", "<html><script>" + repeatedThenUnique(`{"music_id":"%d","title":"t%d","author":"a"}`) + "</script></html>"},
		{"anchor", "text/html", "<html><body>" + repeatedThenUnique(`<a href="/music/s-%d">t%d</a>`) + "</body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, strategy := New().Parse(tt.contentType, []byte(tt.body))
			if strategy != tt.name {
				t.Fatalf("strategy = %q, want %q", strategy, tt.name)
			}
			if len(items) != 11 {
				t.Fatalf("len(items) = %d, want 11", len(items))
			}
			if last := items[10].ID; last != "7300000000000000010" {
				t.Errorf("last id = %q, want 7300000000000000010", last)
			}
		})
	}
}

func TestParse_FragmentStrategy(t *testing.T) {
	body := `<html><body><script id="__DATA__">
		{"list":[{"music_id":"7300000000000000001","title":"Café \"Noir\"","author":"DJ \u00c9t\u00e9","video_count":"2.5M"},
		{"music_id":"7300000000000000002","title":"Second","author":"Other"}]}
	</script></body></html>`

	items, strategy := New().Parse("text/html", []byte(body))
	if strategy != "fragment" {
		t.Fatalf("strategy = %q, want fragment", strategy)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Title != `Café "Noir"` {
		t.Errorf("Title = %q, want unescaped unicode and quotes", items[0].Title)
	}
	if items[0].Author != "DJ Été" {
		t.Errorf("Author = %q, want %q", items[0].Author, "DJ Été")
	}
	if items[0].PlayCount != 2500000 {
		t.Errorf("PlayCount = %d, want 2500000", items[0].PlayCount)
	}
	if items[1].ID != "7300000000000000002" || items[1].PlayCount != 0 {
		t.Errorf("items[1] = %+v, fields must not leak from neighbours", items[1])
	}
}

func TestParse_AnchorStrategy(t *testing.T) {
	body := `<html><body>
		<a href="/music/Espresso-7339012345678901234"><span>Espresso</span></a>
		<a href="https://www.tiktok.com/music/original-sound-7339012345678900000?lang=en"></a>
		<a href="/tag/dance">not music</a>
	</body></html>`

	items, strategy := New().Parse("text/html", []byte(body))
	if strategy != "anchor" {
		t.Fatalf("strategy = %q, want anchor", strategy)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ID != "7339012345678901234" || items[0].Title != "Espresso" || items[0].Author != "Unknown" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Title != "original sound" {
		t.Errorf("items[1].Title = %q, want slug-derived title", items[1].Title)
	}
}

func TestParse_Nothing(t *testing.T) {
	items, strategy := New().Parse("text/html", []byte("<html><p>captcha</p></html>"))
	if len(items) != 0 || strategy != "" {
		t.Errorf("Parse = (%v, %q), want empty", items, strategy)
	}
}

func TestMusicID(t *testing.T) {
	tests := []struct {
		href, slug, id string
		ok             bool
	}{
		{"/music/Espresso-7339012345678901234", "Espresso", "7339012345678901234", true},
		{"https://www.tiktok.com/music/Song-2024-7339012345678901234?x=1", "Song-2024", "7339012345678901234", true},
		{"/music/7339012345678901234", "", "7339012345678901234", true},
		{"/tag/music", "", "", false},
	}
	for _, tt := range tests {
		slug, id, ok := MusicID(tt.href)
		if slug != tt.slug || id != tt.id || ok != tt.ok {
			t.Errorf("MusicID(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.href, slug, id, ok, tt.slug, tt.id, tt.ok)
		}
	}
}
