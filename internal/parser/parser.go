// Package parser turns broker responses (JSON or HTML) into trend items.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/kalambet/trendsync/internal/trend"
)

// Strategy extracts trend items from a response body. Implementations return
// nil when they find nothing; they never fail.
type Strategy interface {
	Name() string
	Extract(body []byte) []trend.Item
}

// Parser tries JSON first, then each HTML strategy in order, and returns the
// first non-empty result. Strategies collect at most trend.MaxItems distinct
// ids each.
type Parser struct {
	json       Strategy
	strategies []Strategy
}

// New returns a Parser with the default strategy chain.
func New() *Parser {
	return &Parser{
		json:       JSONStrategy{},
		strategies: []Strategy{FragmentStrategy{}, AnchorStrategy{}},
	}
}

// Parse extracts items from body. It reports the name of the strategy that
// produced them, or "" when nothing could be extracted.
func (p *Parser) Parse(contentType string, body []byte) ([]trend.Item, string) {
	if looksJSON(contentType, body) {
		if items := p.json.Extract(body); len(items) > 0 {
			return items, p.json.Name()
		}
	}
	for _, s := range p.strategies {
		if items := s.Extract(body); len(items) > 0 {
			return items, s.Name()
		}
	}
	return nil, ""
}

func looksJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	b := bytes.TrimSpace(body)
	return len(b) > 0 && (b[0] == '[' || b[0] == '{')
}

var musicURLRe = regexp.MustCompile(`/music/([^/?#"'\s]*?)-?(\d{6,})(?:[/?#"'\s]|$)`)

// MusicID extracts the slug and numeric id from a TikTok music URL such as
// https://www.tiktok.com/music/Espresso-7339012345678901234.
func MusicID(href string) (slug, id string, ok bool) {
	m := musicURLRe.FindStringSubmatch(href)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
