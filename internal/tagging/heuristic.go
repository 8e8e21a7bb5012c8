package tagging

import (
	"context"
	"strings"

	"github.com/kalambet/trendsync/internal/trend"
)

type keywordRule struct {
	keywords []string
	value    string
}

// Checked in order; the first matching rule wins.
var genreRules = []keywordRule{
	{[]string{"phonk", "drift"}, "phonk"},
	{[]string{"remix", "sped up", "slowed", "edm", "house", "techno", "bass boosted"}, "electronic"},
	{[]string{" rap ", "trap", "drill", "freestyle", "lil ", "yung"}, "hip-hop"},
	{[]string{"r&b", "rnb", "soul"}, "r&b"},
	{[]string{"reggaeton", "bachata", "cumbia", "corrido", "perreo", "bad bunny", "karol g"}, "latin"},
	{[]string{"k-pop", "kpop", " bts ", "blackpink", "newjeans", "stray kids"}, "k-pop"},
	{[]string{"afrobeat", "amapiano", "burna", "wizkid", " rema "}, "afrobeats"},
	{[]string{"country", "cowboy", "morgan wallen"}, "country"},
	{[]string{"rock", "metal", "punk", "guitar"}, "rock"},
	{[]string{"jazz", "swing"}, "jazz"},
	{[]string{"piano", "symphony", "orchestra", "mozart", "chopin"}, "classical"},
	{[]string{"theme", "soundtrack", "from the movie", " ost "}, "soundtrack"},
	{[]string{"original sound", "sonido original", "som original"}, "other"},
}

var vibeRules = []keywordRule{
	{[]string{"gym", "workout", "pump", "beast"}, "gym"},
	{[]string{"sad", "cry", "broken", "alone", "miss you", "lonely"}, "sad"},
	{[]string{"love", "heart", "kiss", "baby", "darling"}, "romantic"},
	{[]string{"party", "club", "shots", "friday"}, "party"},
	{[]string{"dance", "tiktok dance", "shake", "move"}, "dance"},
	{[]string{"lofi", "lo-fi", "chill", "slowed", "relax", "sleep"}, "chill"},
	{[]string{"funny", "meme", "lol", "oh no", "bruh"}, "funny"},
	{[]string{"epic", "dramatic", "villain", " war "}, "dramatic"},
	{[]string{"2000", "2010", "throwback", "retro", " old "}, "nostalgic"},
	{[]string{"motivation", " rise ", "grind", "winner"}, "motivational"},
	{[]string{"aesthetic", "vibe", "dreamy"}, "aesthetic"},
	{[]string{"phonk", "hype", "sped up", "bass", "drill"}, "hype"},
}

// Heuristic classifies by keyword matching on title and author. It never fails.
type Heuristic struct{}

// Classify returns canonical tags, falling back to DefaultGenre/DefaultVibe.
func (Heuristic) Classify(_ context.Context, title, author string) trend.Tags {
	text := " " + strings.ToLower(title+" "+author) + " "
	return Normalize(trend.Tags{
		Genre: match(text, genreRules, DefaultGenre),
		Vibe:  match(text, vibeRules, DefaultVibe),
	})
}

func match(text string, rules []keywordRule, fallback string) string {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.value
			}
		}
	}
	return fallback
}
