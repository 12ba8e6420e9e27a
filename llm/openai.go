package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient is the ChatCompleter backed by the official openai-go SDK.
type OpenAIClient struct {
	client        oai.Client
	model         string
	fallbackModel string
}

// NewOpenAIClient requires an API key and model. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL, model, fallback string, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIClient{client: oai.NewClient(reqOpts...), model: model, fallbackModel: fallback}, nil
}

func (o *OpenAIClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	resp, err := o.complete(ctx, model, req)
	if err == nil || !errors.Is(err, ErrTransient) || o.fallbackModel == "" || o.fallbackModel == model {
		return resp, err
	}
	resp, ferr := o.complete(ctx, o.fallbackModel, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback: %w", ferr)
	}
	return resp, nil
}

func (o *OpenAIClient) complete(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toSDKMessages(req.Messages),
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatResponse{}, classifySDKError(err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: openai: empty choices in response", ErrTransient)
	}
	return ChatResponse{ID: resp.ID, Model: resp.Model, Content: resp.Choices[0].Message.Content}, nil
}

func toSDKMessages(msgs []Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, oai.AssistantMessage(m.Content))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}

func classifySDKError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: %w", classifyStatus(apiErr.StatusCode))
	}
	return fmt.Errorf("%w: openai: %v", ErrTransient, err)
}

// ListModels pages through the models endpoint. Ollama serves the same
// listing on its OpenAI compatible API.
func (o *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: list models: %w", classifySDKError(err))
	}
	var models []string
	for page != nil {
		for _, m := range page.Data {
			models = append(models, m.ID)
		}
		if page, err = page.GetNextPage(); err != nil {
			return nil, fmt.Errorf("openai: list models: %w", classifySDKError(err))
		}
	}
	sort.Strings(models)
	return models, nil
}
