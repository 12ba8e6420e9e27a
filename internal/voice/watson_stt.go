package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/logging"
)

const defaultWatsonModel = "en-US_BroadbandModel"

// WatsonSTT calls the IBM Watson Speech to Text /v1/recognize endpoint with
// API key basic auth and returns the best alternative of the first result.
type WatsonSTT struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	HTTP    *http.Client
}

type watsonRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		Final bool `json:"final"`
	} `json:"results"`
}

// Transcribe implements Transcriber.
func (w *WatsonSTT) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, nil
	}
	if w.URL == "" || w.APIKey == "" {
		return Transcript{}, fmt.Errorf("watson stt: url and api key are required")
	}
	model := w.Model
	if model == "" {
		model = defaultWatsonModel
	}
	q := url.Values{}
	q.Set("model", model)
	q.Set("max_alternatives", "1")
	endpoint := strings.TrimRight(w.URL, "/") + "/v1/recognize?" + q.Encode()
	cid := correlationID(ctx)

	resp, err := PostWithRetries(ctx, w.HTTP, endpoint, audio.BuildWAV(pcm, sampleRate, channels), PostOptions{
		ContentType:   "audio/wav",
		BasicUser:     "apikey",
		BasicPass:     w.APIKey,
		Timeout:       w.Timeout,
		Attempts:      2,
		CorrelationID: cid,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("watson stt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcript{}, fmt.Errorf("watson stt: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out watsonRecognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcript{}, fmt.Errorf("watson stt: decode response: %w", err)
	}
	if len(out.Results) == 0 || len(out.Results[0].Alternatives) == 0 {
		logging.Debugw("watson stt: no results", "correlation_id", cid)
		return Transcript{}, nil
	}
	alt := out.Results[0].Alternatives[0]
	return Transcript{Text: strings.TrimSpace(alt.Transcript), Confidence: clamp01(alt.Confidence)}, nil
}
