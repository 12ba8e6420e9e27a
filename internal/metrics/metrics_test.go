package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordFrame()
	m.RecordDrop()
	m.RecordTranscription(time.Second, errors.New("boom"))
	m.RecordSynthesis(nil)
	m.SetQueueDepth(3)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RecordDrop()
	m.RecordDrop()
	m.RecordSynthesis(errors.New("tts down"))
	m.RecordUtterance(1500 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		"copilot_frames_dropped_total 2",
		`copilot_synthesis_total{result="error"} 1`,
		"copilot_utterances_total 1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
