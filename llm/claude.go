package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	// Anthropic rejects temperatures above 1.
	maxClaudeTemperature = 1.0
)

// ClaudeClient is the ChatCompleter for Anthropic Claude, backed by
// any-llm-go's anthropic provider.
type ClaudeClient struct {
	backend       anyllm.Provider
	baseURL       string
	apiKey        string
	model         string
	fallbackModel string
	http          *http.Client
}

// NewClaudeClient requires an API key and model. baseURL may be empty.
func NewClaudeClient(apiKey, baseURL, model, fallback string, timeout time.Duration) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("claude: model must not be empty")
	}
	opts := []anyllm.Option{anyllm.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anyllm.WithBaseURL(baseURL))
	}
	backend, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("claude: create backend: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClaudeClient{
		backend:       backend,
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		model:         model,
		fallbackModel: fallback,
		http:          &http.Client{Timeout: timeout},
	}, nil
}

func (c *ClaudeClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.complete(ctx, model, req)
	if err == nil || !errors.Is(err, ErrTransient) || c.fallbackModel == "" || c.fallbackModel == model {
		return resp, err
	}
	resp, ferr := c.complete(ctx, c.fallbackModel, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback: %w", ferr)
	}
	return resp, nil
}

func (c *ClaudeClient) complete(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	resp, err := c.backend.Completion(ctx, claudeParams(model, req))
	if err != nil {
		if ctx.Err() != nil {
			return ChatResponse{}, fmt.Errorf("%w: claude: %v", ErrTransient, ctx.Err())
		}
		return ChatResponse{}, fmt.Errorf("%w: claude: %v", ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: claude: empty choices in response", ErrTransient)
	}
	return ChatResponse{
		Model:   model,
		Content: resp.Choices[0].Message.ContentString(),
	}, nil
}

// claudeParams converts req. Role names match the provider's, which lifts
// system turns into Anthropic's system field.
func claudeParams(model string, req ChatRequest) anyllm.CompletionParams {
	msgs := make([]anyllm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, anyllm.Message{Role: m.Role, Content: m.Content})
	}
	params := anyllm.CompletionParams{Model: model, Messages: msgs}
	if req.Temperature != 0 {
		t := req.Temperature
		if t > maxClaudeTemperature {
			t = maxClaudeTemperature
		}
		params.Temperature = &t
	}
	// max_tokens is mandatory on the Messages API
	mt := clampTokens(req.MaxTokens, 0)
	params.MaxTokens = &mt
	return params
}

// ListModels asks the Anthropic models endpoint for the ids available to
// the API key.
func (c *ClaudeClient) ListModels(ctx context.Context) ([]string, error) {
	base := c.baseURL
	if base == "" {
		base = defaultAnthropicURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude: list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("claude: list models: %w", classifyStatus(resp.StatusCode))
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("claude: list models: decode: %w", err)
	}
	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}
