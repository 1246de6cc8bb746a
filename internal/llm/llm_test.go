package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/resilience"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantEmotion string
		wantText    string
	}{
		{"plain json", `{"emotion": "Happy", "text": "Hello there"}`, "Happy", "Hello there"},
		{"surrounding prose", `Sure! {"emotion": "Sad", "text": "Oh no"} hope that helps`, "Sad", "Oh no"},
		{"no braces", "just words", "Neutral", "just words"},
		{"missing emotion", `{"text": "hi"}`, "Neutral", "hi"},
		{"trailing comma repaired", `{"emotion": "Fear", "text": "run",}`, "Fear", "run"},
		{"single quotes repaired", `{'emotion': 'Angry', 'text': 'stop'}`, "Angry", "stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReply(tt.raw, zerolog.Nop())
			if got.Emotion != tt.wantEmotion {
				t.Errorf("Expected emotion %q, got %q", tt.wantEmotion, got.Emotion)
			}
			if got.Text != tt.wantText {
				t.Errorf("Expected text %q, got %q", tt.wantText, got.Text)
			}
		})
	}
}

func TestEchoGenerator(t *testing.T) {
	g := EchoGenerator{}

	res, err := g.Generate(context.Background(), "happy: what a day", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Emotion != "Happy" || res.Text != "what a day" {
		t.Errorf("Expected Happy/what a day, got %s/%s", res.Emotion, res.Text)
	}

	res, _ = g.Generate(context.Background(), "note: not an emotion", nil)
	if res.Emotion != "Neutral" || res.Text != "note: not an emotion" {
		t.Errorf("Expected Neutral passthrough, got %s/%s", res.Emotion, res.Text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, "hi", nil); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	reqs := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		reqs <- req
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"emotion": "Surprise", "text": "Really?"}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"},
		WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewOpenAIGenerator failed: %v", err)
	}

	history := []Turn{{User: "hello", Assistant: "hi"}}
	res, err := g.Generate(context.Background(), "guess what", history)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Emotion != "Surprise" || res.Text != "Really?" {
		t.Errorf("Expected Surprise/Really?, got %s/%s", res.Emotion, res.Text)
	}

	req := <-reqs
	if req.Model != "test-model" {
		t.Errorf("Expected model test-model, got %s", req.Model)
	}
	roles := []string{"system", "user", "assistant", "user"}
	if len(req.Messages) != len(roles) {
		t.Fatalf("Expected %d messages, got %d", len(roles), len(req.Messages))
	}
	for i, role := range roles {
		if req.Messages[i].Role != role {
			t.Errorf("Expected message %d role %s, got %s", i, role, req.Messages[i].Role)
		}
	}
	if req.Messages[3].Content != "guess what" {
		t.Errorf("Expected last message to be the input, got %q", req.Messages[3].Content)
	}
}

func TestOpenAIGenerator_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("plain reply"))
	}))
	defer srv.Close()

	g, _ := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"},
		WithRetryConfig(fastRetry()))

	res, err := g.Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
	if res.Emotion != "Neutral" || res.Text != "plain reply" {
		t.Errorf("Expected Neutral/plain reply, got %s/%s", res.Emotion, res.Text)
	}
}

func TestOpenAIGenerator_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	g, _ := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"},
		WithRetryConfig(fastRetry()))

	if _, err := g.Generate(context.Background(), "hi", nil); err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestNewOpenAIGenerator_Validation(t *testing.T) {
	if _, err := NewOpenAIGenerator(OpenAIConfig{Model: "m"}); err == nil {
		t.Error("Expected error for missing api key")
	}
	if _, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Error("Expected error for missing model")
	}
}
