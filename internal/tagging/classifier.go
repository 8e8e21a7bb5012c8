// Package tagging assigns a genre and vibe to trending sounds, using an LLM
// when one is configured and a keyword heuristic otherwise.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/trendsync/internal/ollama"
	"github.com/kalambet/trendsync/internal/trend"
)

const classifyTimeout = 15 * time.Second

// Classifier returns a best-effort tag pair. Implementations never fail.
type Classifier interface {
	Classify(ctx context.Context, title, author string) trend.Tags
}

// Chatter is a chat completion backend that can return structured JSON.
// Both the local Ollama client and the OpenRouter client satisfy it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// LLMClassifier asks a chat model for tags and falls back to the heuristic
// when the call fails or returns nothing usable.
type LLMClassifier struct {
	client   Chatter
	model    string
	limiter  *rate.Limiter
	timeout  time.Duration
	fallback Heuristic
	logger   *slog.Logger
}

// NewLLMClassifier creates a classifier for model. perSecond throttles calls;
// a non-positive value disables throttling.
func NewLLMClassifier(client Chatter, model string, perSecond float64) *LLMClassifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &LLMClassifier{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		timeout: classifyTimeout,
		logger:  slog.Default(),
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, title, author string) trend.Tags {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("tagging rate limit wait failed", "error", err)
		return c.fallback.Classify(ctx, title, author)
	}

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(title, author), tagSchema())
	if err != nil {
		c.logger.Warn("tagging chat failed", "title", title, "error", err)
		return c.fallback.Classify(ctx, title, author)
	}

	tags, err := parseTags(raw)
	if err != nil {
		c.logger.Warn("tagging response unusable", "title", title, "error", err, "response", raw)
		return c.fallback.Classify(ctx, title, author)
	}

	// Fill an unrecognized half from the heuristic rather than a blind default.
	if tags.Genre == "" || tags.Vibe == "" {
		h := c.fallback.Classify(ctx, title, author)
		if tags.Genre == "" {
			tags.Genre = h.Genre
		}
		if tags.Vibe == "" {
			tags.Vibe = h.Vibe
		}
	}
	return Normalize(tags)
}

// parseTags decodes the model output and canonicalizes each field; a field
// outside the vocabulary comes back empty.
func parseTags(raw string) (trend.Tags, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var t trend.Tags
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return trend.Tags{}, fmt.Errorf("decoding tags: %w", err)
	}
	out := trend.Tags{Genre: NormalizeGenre(t.Genre), Vibe: NormalizeVibe(t.Vibe)}
	if out.Genre == "" && out.Vibe == "" {
		return trend.Tags{}, fmt.Errorf("tags %q/%q outside vocabulary", t.Genre, t.Vibe)
	}
	return out, nil
}

func tagSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"genre": {Type: "string", Description: "Music genre", Enum: Genres},
			"vibe":  {Type: "string", Description: "Mood of the sound", Enum: Vibes},
		},
		Required: []string{"genre", "vibe"},
	}
}
