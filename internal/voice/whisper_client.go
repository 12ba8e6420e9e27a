package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/logging"
)

// WhisperClient posts WAV-wrapped utterances to a whisper-compatible
// inference server and reads back {"text": ...}.
type WhisperClient struct {
	URL       string
	AuthToken string
	Language  string
	Translate bool
	BeamSize  int
	Timeout   time.Duration
	Attempts  int
	HTTP      *http.Client
}

type whisperResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Segments   []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
	ProcessingMs float64 `json:"processing_ms"`
}

func (c *WhisperClient) endpoint() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	q := u.Query()
	if c.Translate {
		q.Set("task", "translate")
	}
	if c.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(c.BeamSize))
	}
	if c.Language != "" {
		q.Set("language", c.Language)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Transcribe implements Transcriber.
func (c *WhisperClient) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, nil
	}
	if c.URL == "" {
		return Transcript{}, fmt.Errorf("whisper: url not configured")
	}
	cid := correlationID(ctx)
	endpoint := c.endpoint()
	wav := audio.BuildWAV(pcm, sampleRate, channels)
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	sendTs := time.Now()
	logging.Debugw("sending audio to whisper", "url", endpoint, "correlation_id", cid, "bytes", len(pcm), "duration_ms", audio.Duration(len(pcm), sampleRate, channels).Milliseconds())
	resp, err := PostWithRetries(ctx, c.HTTP, endpoint, wav, PostOptions{
		ContentType:   "audio/wav",
		AuthToken:     c.AuthToken,
		Timeout:       c.Timeout,
		Attempts:      attempts,
		CorrelationID: cid,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Transcript{}, fmt.Errorf("whisper: status %d", resp.StatusCode)
	}
	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcript{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	serverMs := 0
	if v := resp.Header.Get("X-Processing-Time-ms"); v != "" {
		serverMs, _ = strconv.Atoi(v)
	}
	if serverMs == 0 {
		serverMs = int(out.ProcessingMs)
	}
	logging.Debugw("whisper response received", "correlation_id", cid, "status", resp.StatusCode, "stt_latency_ms", time.Since(sendTs).Milliseconds(), "stt_server_ms", serverMs)
	return Transcript{Text: strings.TrimSpace(out.Text), Confidence: out.confidence()}, nil
}

// confidence prefers an explicit field and otherwise derives one from the
// mean segment log probability.
func (r whisperResponse) confidence() float64 {
	if r.Confidence != nil {
		return clamp01(*r.Confidence)
	}
	if len(r.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.Segments {
		sum += s.AvgLogprob
	}
	return clamp01(math.Exp(sum / float64(len(r.Segments))))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
