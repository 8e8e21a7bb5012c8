package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/trendsync/internal/trend"
)

// Field aliases accepted in broker JSON records, in priority order.
var (
	idKeys     = []string{"id", "music_id"}
	titleKeys  = []string{"title", "name"}
	authorKeys = []string{"author", "artist"}
	countKeys  = []string{"play_count", "video_count"}
	coverKeys  = []string{"cover_url", "cover"}
)

// Envelope keys that may wrap the record array.
var envelopeKeys = []string{"data", "items", "results", "trends", "musics", "sound_list"}

// JSONStrategy decodes a JSON array of records, or an object wrapping one.
type JSONStrategy struct{}

func (JSONStrategy) Name() string { return "json" }

func (JSONStrategy) Extract(body []byte) []trend.Item {
	records := decodeRecords(body)
	if len(records) == 0 {
		return nil
	}

	var c trend.Collector
	for i, raw := range records {
		if c.Full() {
			break
		}
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if it, ok := recordToItem(rec, i+1); ok {
			c.Add(it)
		}
	}
	return c.Items()
}

func decodeRecords(body []byte) []any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return unwrap(v, 0)
}

func unwrap(v any, depth int) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if depth > 2 {
			return nil
		}
		for _, k := range envelopeKeys {
			if inner, ok := t[k]; ok {
				if recs := unwrap(inner, depth+1); len(recs) > 0 {
					return recs
				}
			}
		}
	}
	return nil
}

func recordToItem(rec map[string]any, position int) (trend.Item, bool) {
	title := firstString(rec, titleKeys)
	author := firstString(rec, authorKeys)
	id := firstString(rec, idKeys)
	if id == "" && title == "" {
		return trend.Item{}, false
	}
	if title == "" {
		title = trend.Unknown
	}
	if author == "" {
		author = trend.Unknown
	}
	if id == "" {
		id = trend.SyntheticID(title, author, position)
	}

	rank := position
	if r, ok := numberField(rec, "rank"); ok && r > 0 {
		rank = int(r)
	}

	var plays int64
	for _, k := range countKeys {
		if v, ok := rec[k]; ok {
			plays = toCount(v)
			break
		}
	}

	return trend.Item{
		ID:        id,
		Rank:      rank,
		Title:     title,
		Author:    author,
		PlayCount: plays,
		CoverURL:  firstString(rec, coverKeys),
	}, true
}

func firstString(rec map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func numberField(rec map[string]any, key string) (int64, bool) {
	switch t := rec[key].(type) {
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toCount(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil && i > 0 {
			return i
		}
		if f, err := t.Float64(); err == nil && f > 0 {
			return int64(f)
		}
	case string:
		return trend.ParseCount(t)
	}
	return 0
}
