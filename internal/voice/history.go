package voice

import (
	"strings"
	"sync"
	"time"
)

// Entry is one recognized transcript.
type Entry struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Wake       bool      `json:"wake"`
	At         time.Time `json:"at"`
}

// TranscriptHistory is a bounded, chronological list of transcripts. The
// consumer goroutine appends; control handlers read concurrently.
type TranscriptHistory struct {
	mu      sync.RWMutex
	entries []Entry
	start   int
	size    int
}

// NewTranscriptHistory keeps at most capacity entries (minimum 1).
func NewTranscriptHistory(capacity int) *TranscriptHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &TranscriptHistory{entries: make([]Entry, capacity)}
}

// Append adds e as the most recent entry, evicting the oldest when full.
func (h *TranscriptHistory) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := len(h.entries)
	if h.size < c {
		h.entries[(h.start+h.size)%c] = e
		h.size++
		return
	}
	h.entries[h.start] = e
	h.start = (h.start + 1) % c
}

// Last returns up to n entries, oldest first. n <= 0 returns all.
func (h *TranscriptHistory) Last(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]Entry, n)
	c := len(h.entries)
	for i := 0; i < n; i++ {
		out[i] = h.entries[(h.start+h.size-n+i)%c]
	}
	return out
}

// Context joins the text of the last n entries with newlines.
func (h *TranscriptHistory) Context(n int) string {
	entries := h.Last(n)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	return strings.Join(lines, "\n")
}

func (h *TranscriptHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *TranscriptHistory) Clear() {
	h.mu.Lock()
	h.start, h.size = 0, 0
	h.mu.Unlock()
}
