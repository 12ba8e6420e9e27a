package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClientCompletion(t *testing.T) {
	var gotModel string
	var gotMessages int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&p)
		gotModel, gotMessages = p.Model, len(p.Messages)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"The team agreed on Friday."}}]}`))
	}))
	defer ts.Close()

	c, err := NewOpenAIClient("sk-test", ts.URL, "gpt-4o-mini", "", 0)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	resp, err := c.CreateChatCompletion(context.Background(), ChatRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}},
		Temperature: 0.7,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}
	if resp.Content != "The team agreed on Friday." || resp.ID != "cmpl-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotModel != "gpt-4o-mini" || gotMessages != 2 {
		t.Fatalf("unexpected request model=%q messages=%d", gotModel, gotMessages)
	}
}

func TestOpenAIClientClassifiesAuthErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()
	c, err := NewOpenAIClient("sk-bad", ts.URL, "gpt-4o-mini", "gpt-4o", 0)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if _, err := c.CreateChatCompletion(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "u"}}}); !errors.Is(err, ErrPermanent) {
		t.Fatalf("want ErrPermanent got %v", err)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient("", "", "gpt-4o-mini", "", 0); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}
