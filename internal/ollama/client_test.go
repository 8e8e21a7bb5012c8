package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeOllama serves /api/tags from installed and records chat requests.
type fakeOllama struct {
	mu        sync.Mutex
	installed []string
	chats     []chatRequest
	answer    string
	status    int
}

func (f *fakeOllama) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":"model is loading"}`))
			return
		}
		switch r.URL.Path {
		case "/api/tags":
			var list struct {
				Models []map[string]string `json:"models"`
			}
			for _, n := range f.installed {
				list.Models = append(list.Models, map[string]string{"name": n})
			}
			json.NewEncoder(w).Encode(list)
		case "/api/chat":
			var req chatRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.chats = append(f.chats, req)
			f.mu.Unlock()
			json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: f.answer}, Done: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeOllama) recorded() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.chats...)
}

func closedServerURL() string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	return srv.URL
}

func TestReachable(t *testing.T) {
	srv := (&fakeOllama{}).server(t)
	if !New(srv.URL).Reachable(context.Background()) {
		t.Error("Reachable() = false, want true")
	}
	if New(closedServerURL()).Reachable(context.Background()) {
		t.Error("Reachable() on closed server = true, want false")
	}
}

func TestModels(t *testing.T) {
	srv := (&fakeOllama{installed: []string{"llama3.2:latest", "qwen2.5:7b"}}).server(t)

	got, err := New(srv.URL + "/").Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if strings.Join(got, ",") != "llama3.2:latest,qwen2.5:7b" {
		t.Errorf("Models() = %v", got)
	}
}

func TestHasModel(t *testing.T) {
	srv := (&fakeOllama{installed: []string{"llama3.2:latest", "qwen2.5:7b"}}).server(t)
	c := New(srv.URL)

	tests := []struct {
		model string
		want  bool
	}{
		{"llama3.2", true},
		{"llama3.2:latest", true},
		{"qwen2.5", true},
		{"qwen2.5:14b", false},
		{"llama3", false},
		{"mistral", false},
	}
	for _, tt := range tests {
		if got := c.HasModel(context.Background(), tt.model); got != tt.want {
			t.Errorf("HasModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestChat_TagRequest(t *testing.T) {
	f := &fakeOllama{answer: "  {\"genre\":\"pop\",\"vibe\":\"hype\"}\n"}
	srv := f.server(t)

	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"genre": {Type: "string", Enum: []string{"pop", "rock"}},
			"vibe":  {Type: "string"},
		},
		Required: []string{"genre", "vibe"},
	}
	got, err := New(srv.URL).Chat(context.Background(), "llama3.2", []Message{
		{Role: "user", Content: "Title: Espresso\nAuthor: Sabrina Carpenter"},
	}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != `{"genre":"pop","vibe":"hype"}` {
		t.Errorf("Chat() = %q, want trimmed JSON", got)
	}

	chats := f.recorded()
	if len(chats) != 1 {
		t.Fatalf("chat requests = %d, want 1", len(chats))
	}
	req := chats[0]
	if req.Stream {
		t.Error("stream = true, want false")
	}
	if req.Format == nil || req.Format.Properties["genre"].Enum[1] != "rock" {
		t.Errorf("format = %+v, want the schema with its enum", req.Format)
	}
	if temp, ok := req.Options["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("options.temperature = %v, want 0", req.Options["temperature"])
	}
	if n, ok := req.Options["num_predict"].(float64); !ok || int(n) != maxAnswerTokens {
		t.Errorf("options.num_predict = %v, want %d", req.Options["num_predict"], maxAnswerTokens)
	}
}

func TestChat_NoSchemaOmitsFormat(t *testing.T) {
	f := &fakeOllama{answer: "pong"}
	srv := f.server(t)

	if _, err := New(srv.URL).Chat(context.Background(), "llama3.2", []Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if format := f.recorded()[0].Format; format != nil {
		t.Errorf("format = %+v, want nil", format)
	}
}

func TestChat_StatusError(t *testing.T) {
	srv := (&fakeOllama{status: http.StatusServiceUnavailable}).server(t)

	_, err := New(srv.URL).Chat(context.Background(), "llama3.2", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable || se.Detail != "model is loading" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestPull(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)

		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "pulling manifest"})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var seen []string
	err := New(srv.URL).Pull(context.Background(), "llama3.2", func(p PullProgress) {
		seen = append(seen, p.Status)
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if model != "llama3.2" {
		t.Errorf("pulled model = %q, want llama3.2", model)
	}
	if len(seen) != 3 {
		t.Errorf("progress lines = %d, want 3", len(seen))
	}
}

func TestPull_InStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "pulling manifest"})
		enc.Encode(PullProgress{Error: "pull model manifest: file does not exist"})
	}))
	defer srv.Close()

	err := New(srv.URL).Pull(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("err = %v, want the in-stream error", err)
	}
}

func TestPullProgress_Percent(t *testing.T) {
	if got := (PullProgress{Total: 200, Completed: 50}).Percent(); got != 25 {
		t.Errorf("Percent() = %d, want 25", got)
	}
	if got := (PullProgress{Status: "verifying"}).Percent(); got != -1 {
		t.Errorf("Percent() without sizes = %d, want -1", got)
	}
}

func TestEnsureReady_Unreachable(t *testing.T) {
	err := EnsureReady(context.Background(), New(closedServerURL()), "llama3.2", &bytes.Buffer{})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestEnsureReady_InstalledModelIsWarmed(t *testing.T) {
	f := &fakeOllama{installed: []string{"llama3.2:latest"}, answer: "pong"}
	srv := f.server(t)

	var out bytes.Buffer
	if err := EnsureReady(context.Background(), New(srv.URL), "llama3.2", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if n := len(f.recorded()); n != 1 {
		t.Errorf("warm-up chats = %d, want 1", n)
	}
	if !strings.Contains(out.String(), "ready") {
		t.Errorf("output = %q, want ready", out.String())
	}
}

func TestPullReporter_Throttles(t *testing.T) {
	var out bytes.Buffer
	report := pullReporter(&out)
	for _, done := range []int64{0, 10, 20, 100, 150, 900, 1000} {
		report(PullProgress{Status: "downloading", Total: 1000, Completed: done})
	}
	report(PullProgress{Status: "success"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// 0%, 10%, 90%, 100%, success
	if len(lines) != 5 {
		t.Errorf("lines = %d, want 5:\n%s", len(lines), out.String())
	}
}
