package trend

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
)

// SyntheticID builds a stable id for entries that carry no platform id.
// The id depends only on the normalized title and author so the same sound
// maps to the same row across cycles; index is used only when neither is known.
func SyntheticID(title, author string, index int) string {
	t := Slugify(title)
	a := Slugify(author)
	if isUnknownSlug(t) && isUnknownSlug(a) {
		return fmt.Sprintf("audio-%d", index)
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(author))))

	parts := make([]string, 0, 3)
	if t != "" {
		parts = append(parts, t)
	}
	if a != "" {
		parts = append(parts, a)
	}
	parts = append(parts, fmt.Sprintf("%08x", h.Sum32()))
	return strings.Join(parts, "-")
}

// Slugify transliterates s to ASCII and keeps lowercase alphanumerics joined by
// single dashes, truncated to 40 characters.
func Slugify(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 40 {
		out = strings.TrimSuffix(out[:40], "-")
	}
	return out
}

func isUnknownSlug(s string) bool {
	return s == "" || s == "unknown"
}
