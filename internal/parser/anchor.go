package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/trendsync/internal/trend"
)

// AnchorStrategy scans anchor tags that link to music pages. The link text is
// the title; the author is not available from an anchor and stays Unknown.
type AnchorStrategy struct{}

func (AnchorStrategy) Name() string { return "anchor" }

func (AnchorStrategy) Extract(body []byte) []trend.Item {
	z := html.NewTokenizer(bytes.NewReader(body))

	var (
		c      trend.Collector
		inLink bool
		slug   string
		id     string
		text   strings.Builder
	)

	flush := func() {
		title := strings.Join(strings.Fields(text.String()), " ")
		if title == "" {
			title = strings.ReplaceAll(slug, "-", " ")
		}
		if title == "" {
			title = trend.Unknown
		}
		c.Add(trend.Item{
			ID:     id,
			Rank:   c.Len() + 1,
			Title:  title,
			Author: trend.Unknown,
		})
	}

	for !c.Full() {
		switch z.Next() {
		case html.ErrorToken:
			if inLink {
				flush()
			}
			return c.Items()
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			if inLink {
				flush()
				inLink = false
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if s, mid, ok := MusicID(string(val)); ok {
						inLink, slug, id = true, s, mid
						text.Reset()
					}
				}
				if !more {
					break
				}
			}
		case html.TextToken:
			if inLink {
				text.Write(z.Text())
				text.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inLink && string(name) == "a" {
				flush()
				inLink = false
			}
		}
	}
	return c.Items()
}
