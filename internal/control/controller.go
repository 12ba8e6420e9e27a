// Package control exposes the running copilot to local user interfaces: a
// websocket event hub for overlays and an MCP tool server for agents.
package control

import (
	"errors"

	"github.com/meeting-copilot/internal/voice"
)

// ErrUnknownSource is returned by SwitchSource for names it cannot build.
var ErrUnknownSource = errors.New("unknown audio source")

// Status is the snapshot reported to control clients.
type Status struct {
	Muted    bool        `json:"muted"`
	Mode     string      `json:"mode"`
	Source   string      `json:"source"`
	Degraded []string    `json:"degraded,omitempty"`
	Pipeline voice.Stats `json:"pipeline"`
}

// Controller is the set of operations a control surface may invoke.
type Controller interface {
	SetMuted(muted bool)
	SetMode(m voice.Mode) error
	SwitchSource(name string) error
	Quit()
	Status() Status
	RecentTranscripts(n int) []voice.Entry
}
