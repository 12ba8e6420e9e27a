package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

// ErrTTSNotConfigured is returned when a TTS client has no endpoint.
var ErrTTSNotConfigured = errors.New("tts client not configured")

// TTSClient performs text to audio synthesis over HTTP. With APIKey set it
// speaks the IBM Watson Text to Speech protocol (basic auth, voice query,
// /v1/synthesize); otherwise it posts {"text": ...} with an optional bearer
// token and expects audio back.
type TTSClient struct {
	URL       string
	AuthToken string
	APIKey    string
	Voice     string
	Accept    string
	Timeout   time.Duration
	HTTP      *http.Client
}

func (t *TTSClient) endpoint() string {
	if t.APIKey == "" {
		return t.URL
	}
	q := url.Values{}
	if t.Voice != "" {
		q.Set("voice", t.Voice)
	}
	return strings.TrimRight(t.URL, "/") + "/v1/synthesize?" + q.Encode()
}

// Synthesize returns the synthesized audio and its content type.
func (t *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if t == nil || t.URL == "" {
		return nil, "", ErrTTSNotConfigured
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	accept := t.Accept
	if accept == "" {
		accept = "audio/wav"
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := PostOptions{
		ContentType:   "application/json",
		Accept:        accept,
		AuthToken:     t.AuthToken,
		Timeout:       timeout,
		Attempts:      2,
		CorrelationID: correlationID(ctx),
	}
	if t.APIKey != "" {
		opts.BasicUser, opts.BasicPass = "apikey", t.APIKey
	}
	resp, err := PostWithRetries(ctx, t.HTTP, t.endpoint(), body, opts)
	if err != nil {
		return nil, "", fmt.Errorf("tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logging.Warnw("tts: returned non-2xx", "status", resp.StatusCode)
		return nil, "", fmt.Errorf("tts: status %d", resp.StatusCode)
	}
	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("tts: read body: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = accept
	}
	return audioBytes, ct, nil
}
