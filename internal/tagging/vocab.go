package tagging

import (
	"strings"

	"github.com/kalambet/trendsync/internal/trend"
)

// Fallback values used when nothing better is known.
const (
	DefaultGenre = "other"
	DefaultVibe  = "hype"
)

// Genres is the canonical genre vocabulary.
var Genres = []string{
	"pop", "hip-hop", "r&b", "electronic", "rock", "latin", "k-pop", "country",
	"indie", "afrobeats", "phonk", "jazz", "classical", "soundtrack", "other",
}

// Vibes is the canonical vibe vocabulary.
var Vibes = []string{
	"hype", "chill", "sad", "romantic", "funny", "gym", "party", "dance",
	"dramatic", "nostalgic", "motivational", "aesthetic",
}

var genreAliases = map[string]string{
	"hiphop":      "hip-hop",
	"hip hop":     "hip-hop",
	"rap":         "hip-hop",
	"trap":        "hip-hop",
	"drill":       "hip-hop",
	"rnb":         "r&b",
	"r and b":     "r&b",
	"r'n'b":       "r&b",
	"edm":         "electronic",
	"house":       "electronic",
	"techno":      "electronic",
	"dubstep":     "electronic",
	"dance":       "electronic",
	"kpop":        "k-pop",
	"k pop":       "k-pop",
	"reggaeton":   "latin",
	"afrobeat":    "afrobeats",
	"amapiano":    "afrobeats",
	"alt":         "indie",
	"alternative": "indie",
	"metal":       "rock",
	"punk":        "rock",
	"ost":         "soundtrack",
	"score":       "soundtrack",
	"orchestral":  "classical",
}

var vibeAliases = map[string]string{
	"workout":       "gym",
	"fitness":       "gym",
	"training":      "gym",
	"energetic":     "hype",
	"upbeat":        "hype",
	"hyped":         "hype",
	"relaxed":       "chill",
	"calm":          "chill",
	"lofi":          "chill",
	"lo-fi":         "chill",
	"melancholy":    "sad",
	"emotional":     "sad",
	"love":          "romantic",
	"comedy":        "funny",
	"meme":          "funny",
	"club":          "party",
	"dancing":       "dance",
	"epic":          "dramatic",
	"cinematic":     "dramatic",
	"throwback":     "nostalgic",
	"retro":         "nostalgic",
	"inspiring":     "motivational",
	"inspirational": "motivational",
	"vibey":         "aesthetic",
}

var placeholders = map[string]bool{
	"":         true,
	"unknown":  true,
	"untagged": true,
	"n/a":      true,
	"none":     true,
	"null":     true,
}

// IsPlaceholder reports whether a stored genre or vibe carries no information.
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// NeedsTag reports whether either tag is missing or a placeholder.
func NeedsTag(existing *trend.Tags) bool {
	return existing == nil || IsPlaceholder(existing.Genre) || IsPlaceholder(existing.Vibe)
}

// NormalizeGenre maps s onto the canonical genre vocabulary, or "" if unknown.
func NormalizeGenre(s string) string {
	return canonical(s, Genres, genreAliases)
}

// NormalizeVibe maps s onto the canonical vibe vocabulary, or "" if unknown.
func NormalizeVibe(s string) string {
	return canonical(s, Vibes, vibeAliases)
}

// Normalize canonicalizes both tags, substituting defaults for unknown values.
func Normalize(t trend.Tags) trend.Tags {
	g := NormalizeGenre(t.Genre)
	if g == "" {
		g = DefaultGenre
	}
	v := NormalizeVibe(t.Vibe)
	if v == "" {
		v = DefaultVibe
	}
	return trend.Tags{Genre: g, Vibe: v}
}

func canonical(s string, vocab []string, aliases map[string]string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `."'`)
	if s == "" {
		return ""
	}
	for _, v := range vocab {
		if s == v {
			return v
		}
	}
	if v, ok := aliases[s]; ok {
		return v
	}
	if v, ok := aliases[strings.ReplaceAll(s, "-", " ")]; ok {
		return v
	}
	if v, ok := aliases[strings.ReplaceAll(s, "-", "")]; ok {
		return v
	}
	return ""
}
