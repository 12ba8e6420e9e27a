package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatCompleter is implemented by every chat back-end.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

const (
	defaultMaxTokens = 512
	maxTokensCap     = 4000
)

// Client talks to any OpenAI-compatible /chat/completions endpoint
// (Ollama, llama.cpp, vLLM, hosted gateways) with plain HTTP.
type Client struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	// MaxTokensCap clamps per-request max_tokens (default 4000).
	MaxTokensCap int
	HTTP         *http.Client
}

// NewClient builds a client for baseURL with a 20s request timeout.
func NewClient(baseURL, apiKey, model, fallback string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		Model:         model,
		FallbackModel: fallback,
		HTTP:          &http.Client{Timeout: 20 * time.Second},
	}
}

// NewClientFromEnv reads OPENAI_BASE_URL, OPENAI_API_KEY, OPENAI_MODEL and
// OPENAI_FALLBACK_MODEL.
func NewClientFromEnv() *Client {
	base := os.Getenv("OPENAI_BASE_URL")
	if base == "" {
		base = "http://127.0.0.1:8000/v1"
	}
	return NewClient(base, os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"), os.Getenv("OPENAI_FALLBACK_MODEL"))
}

// CreateChatCompletion sends req, retrying once on the fallback model when
// the primary fails transiently.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = "local"
	}
	req.Model = model
	req.MaxTokens = clampTokens(req.MaxTokens, c.MaxTokensCap)

	resp, err := c.post(ctx, req)
	if err == nil || !errors.Is(err, ErrTransient) {
		return resp, err
	}
	fallback := c.FallbackModel
	if fallback == "" || fallback == model {
		return ChatResponse{}, err
	}
	logging.Warnw("llm: primary model failed; trying fallback", "model", model, "fallback", fallback, "err", err)
	select {
	case <-ctx.Done():
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	case <-time.After(250 * time.Millisecond):
	}
	req.Model = fallback
	resp, ferr := c.post(ctx, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback: %w", ferr)
	}
	return resp, nil
}

func clampTokens(n, limit int) int {
	if n <= 0 {
		n = defaultMaxTokens
	}
	if limit <= 0 {
		limit = maxTokensCap
	}
	if n > limit {
		n = limit
	}
	return n
}

func (c *Client) post(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if cid := correlationID(ctx); cid != "" {
		httpReq.Header.Set("X-Correlation-ID", cid)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			ID      string `json:"id"`
			Model   string `json:"model"`
			Choices []struct {
				Message Message `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return ChatResponse{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		content := ""
		if len(out.Choices) > 0 {
			content = out.Choices[0].Message.Content
		}
		if out.Model == "" {
			out.Model = req.Model
		}
		return ChatResponse{ID: out.ID, Model: out.Model, Content: content}, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return ChatResponse{}, classifyStatus(resp.StatusCode)
}

// classifyStatus maps 5xx and 429 to ErrTransient and other failures to ErrPermanent.
func classifyStatus(code int) error {
	if code >= 500 || code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrTransient, code)
	}
	return fmt.Errorf("%w: status %d", ErrPermanent, code)
}

func correlationID(ctx context.Context) string {
	fields := logging.FromContext(ctx)
	for i := 0; i+1 < len(fields); i += 2 {
		if k, _ := fields[i].(string); k == "correlation_id" {
			v, _ := fields[i+1].(string)
			return v
		}
	}
	return ""
}
