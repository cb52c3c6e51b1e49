package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/venomvoice/voicecore/internal/config"
)

func testChatConfig(endpoint string) config.ChatConfig {
	cfg := config.Default().Chat
	cfg.Endpoint = endpoint
	cfg.APIKeyEnv = "TEST_CHAT_API_KEY"
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildMessagesTruncatesHistory(t *testing.T) {
	r := NewResponder(testChatConfig("http://unused"), testLogger())

	history := make([]Message, 15)
	for i := range history {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history[i] = Message{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}

	messages := r.buildMessages("latest question", history, "")

	// One system message, the last ten turns, the new user message.
	if len(messages) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatalf("expected leading system message, got %q", messages[0].Role)
	}
	if messages[1].Content != "turn 5" {
		t.Fatalf("expected oldest kept turn to be turn 5, got %q", messages[1].Content)
	}
	if messages[10].Content != "turn 14" {
		t.Fatalf("expected newest turn last, got %q", messages[10].Content)
	}
	if messages[11].Role != "user" || messages[11].Content != "latest question" {
		t.Fatalf("expected trailing user message, got %+v", messages[11])
	}
}

func TestBuildMessagesSystemPromptFallback(t *testing.T) {
	cfg := testChatConfig("http://unused")
	cfg.SystemPrompt = ""
	r := NewResponder(cfg, testLogger())

	messages := r.buildMessages("hi", nil, "")
	if messages[0].Content != config.DefaultSystemPrompt {
		t.Fatalf("expected built-in system prompt, got %q", messages[0].Content)
	}

	messages = r.buildMessages("hi", nil, "You are a pirate.")
	if messages[0].Content != "You are a pirate." {
		t.Fatalf("expected per-request system prompt, got %q", messages[0].Content)
	}
}

func TestRespondMissingAPIKey(t *testing.T) {
	t.Setenv("TEST_CHAT_API_KEY", "")
	r := NewResponder(testChatConfig("http://unused"), testLogger())

	_, _, err := r.Respond(context.Background(), "hello", nil, "", 0.7, 100)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	t.Setenv("TEST_CHAT_API_KEY", "sk-test")

	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "안녕하세요!"}},
			},
			"usage": map[string]int{"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25},
		})
	}))
	defer srv.Close()

	r := NewResponder(testChatConfig(srv.URL), testLogger())
	reply, usage, err := r.Respond(context.Background(), "인사해줘", nil, "", 0.7, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "안녕하세요!" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if usage == nil || usage.TotalTokens != 25 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if gotReq.Model != "deepseek-chat" {
		t.Fatalf("unexpected model %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 100 {
		t.Fatalf("expected max_tokens 100, got %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "인사해줘" {
		t.Fatalf("unexpected messages %+v", gotReq.Messages)
	}
}

func TestRespondUpstreamError(t *testing.T) {
	t.Setenv("TEST_CHAT_API_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResponder(testChatConfig(srv.URL), testLogger())
	_, _, err := r.Respond(context.Background(), "hello", nil, "", 0.7, 100)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestRespondEmptyChoices(t *testing.T) {
	t.Setenv("TEST_CHAT_API_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	r := NewResponder(testChatConfig(srv.URL), testLogger())
	_, _, err := r.Respond(context.Background(), "hello", nil, "", 0.7, 100)
	if !errors.Is(err, ErrUpstreamContract) {
		t.Fatalf("expected ErrUpstreamContract, got %v", err)
	}
}
