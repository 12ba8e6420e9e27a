package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

const (
	defaultIAMURL         = "https://iam.cloud.ibm.com/identity/token"
	watsonxVersion        = "2023-05-29"
	watsonxCatalogVersion = "2024-09-16"
)

// WatsonxClient generates text with IBM watsonx.ai. Chat turns are folded
// into one "Role: content" prompt since the text generation endpoint takes
// plain input.
type WatsonxClient struct {
	BaseURL       string
	APIKey        string
	ProjectID     string
	Model         string
	FallbackModel string
	// IAMURL exchanges the API key for a bearer token.
	IAMURL       string
	MaxTokensCap int
	HTTP         *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewWatsonxClient requires an API key and a project id.
func NewWatsonxClient(baseURL, apiKey, projectID, model, fallback string, timeout time.Duration) (*WatsonxClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("watsonx: apiKey must not be empty")
	}
	if projectID == "" {
		return nil, fmt.Errorf("watsonx: projectID must not be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WatsonxClient{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		ProjectID:     projectID,
		Model:         model,
		FallbackModel: fallback,
		IAMURL:        defaultIAMURL,
		HTTP:          &http.Client{Timeout: timeout},
	}, nil
}

// PromptFromMessages renders chat turns as the text prompt watsonx expects,
// ending with an open assistant turn.
func PromptFromMessages(msgs []Message) string {
	parts := make([]string, 0, len(msgs)+1)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		default:
			parts = append(parts, "User: "+m.Content)
		}
	}
	parts = append(parts, "Assistant:")
	return strings.Join(parts, "\n\n")
}

func (w *WatsonxClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = w.Model
	}
	req.Model = model
	req.MaxTokens = clampTokens(req.MaxTokens, w.MaxTokensCap)

	resp, err := w.generate(ctx, req)
	if err == nil || !errors.Is(err, ErrTransient) || w.FallbackModel == "" || w.FallbackModel == model {
		return resp, err
	}
	logging.Warnw("watsonx: primary model failed; trying fallback", "model", model, "fallback", w.FallbackModel, "err", err)
	req.Model = w.FallbackModel
	resp, ferr := w.generate(ctx, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback: %w", ferr)
	}
	return resp, nil
}

type watsonxParams struct {
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

type watsonxRequest struct {
	ModelID    string        `json:"model_id"`
	Input      string        `json:"input"`
	ProjectID  string        `json:"project_id"`
	Parameters watsonxParams `json:"parameters"`
}

func (w *WatsonxClient) generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(watsonxRequest{
		ModelID:    req.Model,
		Input:      PromptFromMessages(req.Messages),
		ProjectID:  w.ProjectID,
		Parameters: watsonxParams{MaxNewTokens: req.MaxTokens, Temperature: req.Temperature},
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	token, err := w.bearer(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	endpoint := fmt.Sprintf("%s/ml/v1/text/generation?version=%s", w.BaseURL, watsonxVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if cid := correlationID(ctx); cid != "" {
		httpReq.Header.Set("X-Correlation-ID", cid)
	}

	resp, err := w.client().Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		w.forgetToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ChatResponse{}, fmt.Errorf("watsonx: %w", classifyStatus(resp.StatusCode))
	}
	var out struct {
		ModelID string `json:"model_id"`
		Results []struct {
			GeneratedText string `json:"generated_text"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: watsonx: decode error: %v", ErrTransient, err)
	}
	if len(out.Results) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: watsonx: empty results", ErrTransient)
	}
	if out.ModelID == "" {
		out.ModelID = req.Model
	}
	return ChatResponse{Model: out.ModelID, Content: strings.TrimSpace(out.Results[0].GeneratedText)}, nil
}

// bearer returns a cached IAM token, refreshing it a minute before expiry.
func (w *WatsonxClient) bearer(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != "" && time.Now().Before(w.expires) {
		return w.token, nil
	}
	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {w.APIKey},
	}
	iam := w.IAMURL
	if iam == "" {
		iam = defaultIAMURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, iam, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	resp, err := w.client().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: iam token: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("watsonx: iam token: %w", classifyStatus(resp.StatusCode))
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: iam token: malformed response", ErrTransient)
	}
	w.token = tok.AccessToken
	w.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return w.token, nil
}

func (w *WatsonxClient) forgetToken() {
	w.mu.Lock()
	w.token = ""
	w.mu.Unlock()
}

func (w *WatsonxClient) client() *http.Client {
	if w.HTTP == nil {
		return http.DefaultClient
	}
	return w.HTTP
}

// ListModels reads the public foundation model specs of the client's
// region, leaving out models that are deprecated or withdrawn today. No
// credentials are needed.
func (w *WatsonxClient) ListModels(ctx context.Context) ([]string, error) {
	q := url.Values{
		"version": {watsonxCatalogVersion},
		"filters": {"!function_embedding,!lifecycle_withdrawn"},
	}
	endpoint := fmt.Sprintf("%s/ml/v1/foundation_model_specs?%s", w.BaseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("watsonx: list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("watsonx: list models: %w", classifyStatus(resp.StatusCode))
	}
	var out struct {
		Resources []struct {
			ModelID   string `json:"model_id"`
			Lifecycle []struct {
				ID        string `json:"id"`
				StartDate string `json:"start_date"`
			} `json:"lifecycle"`
		} `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("watsonx: list models: decode: %w", err)
	}
	today := time.Now().UTC().Format("2006-01-02")
	seen := make(map[string]bool)
	for _, m := range out.Resources {
		retired := false
		for _, l := range m.Lifecycle {
			if (l.ID == "deprecated" || l.ID == "withdrawn") && l.StartDate <= today {
				retired = true
				break
			}
		}
		if m.ModelID != "" && !retired {
			seen[m.ModelID] = true
		}
	}
	models := make([]string, 0, len(seen))
	for id := range seen {
		models = append(models, id)
	}
	sort.Strings(models)
	return models, nil
}
