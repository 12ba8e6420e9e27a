package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClaudeParams(t *testing.T) {
	p := claudeParams("claude-sonnet-4-5", ChatRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "Be brief."}, {Role: RoleUser, Content: "hi"}},
		Temperature: 1.4,
	})
	if p.Model != "claude-sonnet-4-5" || len(p.Messages) != 2 || p.Messages[0].Role != RoleSystem {
		t.Fatalf("unexpected params %+v", p)
	}
	if p.Temperature == nil || *p.Temperature != 1.0 {
		t.Fatalf("temperature should be clamped to 1, got %v", p.Temperature)
	}
	if p.MaxTokens == nil || *p.MaxTokens != defaultMaxTokens {
		t.Fatalf("max tokens should default, got %v", p.MaxTokens)
	}
}

func TestClaudeClientCompletion(t *testing.T) {
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-5",
			"content":     []map[string]any{{"type": "text", "text": "Ship on Friday."}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 4},
		})
	}))
	defer ts.Close()

	c, err := NewClaudeClient("sk-ant-test", ts.URL, "claude-sonnet-4-5", "", time.Second)
	if err != nil {
		t.Fatalf("NewClaudeClient: %v", err)
	}
	resp, err := c.CreateChatCompletion(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "When?"}}})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if resp.Content != "Ship on Friday." || resp.Model != "claude-sonnet-4-5" || gotKey != "sk-ant-test" {
		t.Fatalf("unexpected response %+v key %q", resp, gotKey)
	}
}

func TestClaudeListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" || r.Header.Get("x-api-key") != "sk-ant-test" || r.Header.Get("anthropic-version") != anthropicVersion {
			http.Error(w, "denied", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-sonnet-4-5"},{"id":"claude-haiku-4-5"},{"id":""}]}`))
	}))
	defer ts.Close()

	c, err := NewClaudeClient("sk-ant-test", ts.URL+"/", "claude-sonnet-4-5", "", time.Second)
	if err != nil {
		t.Fatalf("NewClaudeClient: %v", err)
	}
	got, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(got) != 2 || got[0] != "claude-haiku-4-5" || got[1] != "claude-sonnet-4-5" {
		t.Fatalf("unexpected models %v", got)
	}
}

func TestNewClaudeClientRequiresKey(t *testing.T) {
	if _, err := NewClaudeClient("", "", "claude-sonnet-4-5", "", 0); err == nil {
		t.Fatalf("missing key should fail")
	}
}
