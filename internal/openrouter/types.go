package openrouter

import "github.com/kalambet/trendsync/internal/ollama"

// Temperature is always sent; zero keeps tagging repeatable.
type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []ollama.Message `json:"messages"`
	Temperature    float64          `json:"temperature"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string       `json:"type"`
	JSONSchema *namedSchema `json:"json_schema,omitempty"`
}

type namedSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema *ollama.Schema `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message ollama.Message `json:"message"`
	} `json:"choices"`
}

// Model is one entry of GET /models.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length,omitempty"`
}
