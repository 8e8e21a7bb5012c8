package parser

import (
	"encoding/json"
	"regexp"

	"github.com/kalambet/trendsync/internal/trend"
)

var (
	fragmentIDRe     = regexp.MustCompile(`"(?:music_id|musicId)"\s*:\s*"?(\d{6,})"?`)
	fragmentTitleRe  = regexp.MustCompile(`"(?:title|musicName)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fragmentAuthorRe = regexp.MustCompile(`"(?:author|authorName)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fragmentCountRe  = regexp.MustCompile(`"(?:play_count|video_count|videoCount)"\s*:\s*"?([\d.,]+[KMBkmb]?)"?`)
)

// fragmentWindow bounds how far past an id the strategy looks for fields.
const fragmentWindow = 2048

// FragmentStrategy scans HTML for JSON fragments embedded in script payloads
// and reads the fields that follow each music id.
type FragmentStrategy struct{}

func (FragmentStrategy) Name() string { return "fragment" }

func (FragmentStrategy) Extract(body []byte) []trend.Item {
	locs := fragmentIDRe.FindAllSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}

	var c trend.Collector
	for i, loc := range locs {
		if c.Full() {
			break
		}
		end := loc[1] + fragmentWindow
		if i+1 < len(locs) && locs[i+1][0] < end {
			end = locs[i+1][0]
		}
		if end > len(body) {
			end = len(body)
		}
		window := body[loc[1]:end]

		it := trend.Item{
			ID:     string(body[loc[2]:loc[3]]),
			Rank:   c.Len() + 1,
			Title:  matchString(fragmentTitleRe, window),
			Author: matchString(fragmentAuthorRe, window),
		}
		if m := fragmentCountRe.FindSubmatch(window); m != nil {
			it.PlayCount = trend.ParseCount(string(m[1]))
		}
		if it.Title == "" {
			it.Title = trend.Unknown
		}
		if it.Author == "" {
			it.Author = trend.Unknown
		}
		c.Add(it)
	}
	return c.Items()
}

func matchString(re *regexp.Regexp, b []byte) string {
	m := re.FindSubmatch(b)
	if m == nil {
		return ""
	}
	return unescapeJSON(string(m[1]))
}

// unescapeJSON decodes \uXXXX sequences (including surrogate pairs) and
// escaped quotes in a raw JSON string body. Invalid escapes leave the input unchanged.
func unescapeJSON(s string) string {
	var u string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &u); err == nil {
		return u
	}
	return s
}
