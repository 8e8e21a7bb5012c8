// Package scraper acquires trends by rendering the public trending-music page
// in a headless browser and reading the DOM.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/kalambet/trendsync/internal/parser"
	"github.com/kalambet/trendsync/internal/trend"
)

// DefaultURL is the trending-music page scraped by default.
const DefaultURL = "https://ads.tiktok.com/business/creativecenter/inspiration/popular/music/pc/en"

// ErrNoItems is returned when the page rendered but no trend rows were found.
var ErrNoItems = errors.New("no trend items found on page")

// Alternative selectors, tried in order; the page markup changes often.
var (
	rowSelectors = []string{
		`[data-e2e="music-item"]`,
		`div[class*="CommonDataList_cardWrapper"]`,
		`div[class*="ItemCard_container"]`,
		`li[class*="music-item"]`,
	}
	titleSelectors = []string{
		`[data-e2e="music-title"]`,
		`[class*="musicName"]`,
		`[class*="music-name"]`,
		`[class*="title"]`,
		`h3`,
	}
	authorSelectors = []string{
		`[data-e2e="music-author"]`,
		`[class*="authorName"]`,
		`[class*="author"]`,
		`[class*="artist"]`,
	}
	countSelectors = []string{
		`[data-e2e="video-count"]`,
		`[class*="videoCount"]`,
		`[class*="count"]`,
	}
	rankSelectors = []string{
		`[data-e2e="music-rank"]`,
		`[class*="rankingIndex"]`,
		`[class*="rank"]`,
	}
)

const musicLinkSelector = `a[href*="/music/"]`

// Scraper is the primary acquisition source.
type Scraper struct {
	browser Browser
	url     string
	logger  *slog.Logger
}

// New creates a Scraper for url (DefaultURL when empty).
func New(browser Browser, url string) *Scraper {
	if url == "" {
		url = DefaultURL
	}
	return &Scraper{browser: browser, url: url, logger: slog.Default()}
}

// Fetch renders the trending page and extracts up to trend.MaxItems items.
func (s *Scraper) Fetch(ctx context.Context) ([]trend.Item, error) {
	page, err := s.browser.Render(ctx, s.url, strings.Join(rowSelectors, ", "))
	if err != nil {
		return nil, fmt.Errorf("rendering trending page: %w", err)
	}

	items, err := Extract(page)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	s.logger.Debug("scraped trending page", "items", len(items))
	return items, nil
}

// Extract reads trend rows from rendered HTML. When no row selector matches,
// it falls back to music links and climbs to their nearest container.
func Extract(page string) ([]trend.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	var rows *goquery.Selection
	for _, sel := range rowSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			rows = found
			break
		}
	}

	var c trend.Collector
	if rows != nil {
		rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
			c.Add(extractRow(row, row.Find(musicLinkSelector).First(), c.Len()+1))
			return !c.Full()
		})
		return c.Items(), nil
	}

	seen := make(map[*html.Node]bool)
	doc.Find(musicLinkSelector).EachWithBreak(func(i int, link *goquery.Selection) bool {
		container := link.Closest("li, tr, article, div")
		if container.Length() == 0 {
			container = link
		}
		node := container.Get(0)
		if seen[node] {
			return true
		}
		seen[node] = true
		c.Add(extractRow(container, link, c.Len()+1))
		return !c.Full()
	})
	return c.Items(), nil
}

func extractRow(row, link *goquery.Selection, position int) trend.Item {
	it := trend.Item{
		Rank:      position,
		Title:     firstText(row, titleSelectors),
		Author:    firstText(row, authorSelectors),
		PlayCount: trend.ParseCount(firstText(row, countSelectors)),
	}

	if r, err := strconv.Atoi(strings.TrimPrefix(firstText(row, rankSelectors), "#")); err == nil && r > 0 {
		it.Rank = r
	}
	if src, ok := row.Find("img").First().Attr("src"); ok {
		it.CoverURL = src
	}

	if href, ok := link.Attr("href"); ok {
		if _, id, ok := parser.MusicID(href); ok {
			it.ID = id
		}
		if it.Title == "" {
			it.Title = strings.TrimSpace(link.Text())
		}
	}

	if it.Title == "" {
		it.Title = trend.Unknown
	}
	if it.Author == "" {
		it.Author = trend.Unknown
	}
	if it.ID == "" {
		it.ID = trend.SyntheticID(it.Title, it.Author, position)
	}
	return it
}

func firstText(row *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(row.Find(sel).First().Text()); t != "" {
			return strings.Join(strings.Fields(t), " ")
		}
	}
	return ""
}
