package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

// ErrRecordNotFound is returned when no session record carries a correlation id.
var ErrRecordNotFound = errors.New("session record not found")

// WakeRecord is the JSON document written for each wake event. Captured
// audio is never written; only its length is noted.
type WakeRecord struct {
	CorrelationID  string    `json:"correlation_id"`
	Transcript     string    `json:"transcript"`
	Command        string    `json:"command,omitempty"`
	Mode           string    `json:"mode"`
	Context        string    `json:"context"`
	Response       string    `json:"response"`
	PrewakeSeconds float64   `json:"prewake_seconds"`
	LatencyMs      int64     `json:"latency_ms"`
	At             time.Time `json:"at"`
}

// SessionLog stores opt-in wake event records as one JSON file per event.
// A nil *SessionLog is disabled.
type SessionLog struct {
	Dir string
	mu  sync.Mutex
}

// NewSessionLog returns nil when dir is blank.
func NewSessionLog(dir string) *SessionLog {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &SessionLog{Dir: dir}
}

func (s *SessionLog) pathFor(rec WakeRecord) string {
	ts := rec.At.UTC().Format("20060102T150405.000Z")
	return filepath.Join(s.Dir, fmt.Sprintf("%s_wake_cid%s.json", ts, rec.CorrelationID))
}

// Record writes rec atomically.
func (s *SessionLog) Record(rec WakeRecord) error {
	if s == nil {
		return nil
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session log: marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathFor(rec)
	if err := SaveFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("session log: write %s: %w", path, err)
	}
	logging.Debugw("session log: saved wake record", "path", path, "correlation_id", rec.CorrelationID)
	return nil
}

// FindByCID returns the path of the record for cid, or "".
func (s *SessionLog) FindByCID(cid string) string {
	if s == nil || cid == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*_cid"+cid+".json"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// MergeUpdates merges updates into the record for cid and rewrites it.
func (s *SessionLog) MergeUpdates(cid string, updates map[string]interface{}) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.FindByCID(cid)
	if path == "" {
		return fmt.Errorf("%w: cid=%s dir=%s", ErrRecordNotFound, cid, s.Dir)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("session log: read %s: %w", path, err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("session log: invalid JSON %s: %w", path, err)
	}
	for k, v := range updates {
		doc[k] = v
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("session log: marshal %s: %w", path, err)
	}
	if err := SaveFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("session log: write %s: %w", path, err)
	}
	return nil
}
