package tagging

import (
	"fmt"
	"strings"

	"github.com/kalambet/trendsync/internal/ollama"
)

const systemPrompt = `You label trending TikTok sounds. Given a sound's title and author, answer with ONLY a JSON object {"genre": ..., "vibe": ...}. No prose, no markdown.

Allowed genres: %s.
Allowed vibes: %s.

Rules:
- Pick the single closest value from each list.
- "original sound" clips with no musical cue are genre "other".
- Use the vibe creators would pick the sound for, not the lyric's literal topic.`

// BuildPrompt constructs the chat messages for classifying one sound.
func BuildPrompt(title, author string) []ollama.Message {
	return []ollama.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(Genres, ", "), strings.Join(Vibes, ", "))},
		{Role: "user", Content: fmt.Sprintf("Title: %s\nAuthor: %s", title, author)},
	}
}
