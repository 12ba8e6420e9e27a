package voice

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ConsolePresenter prints transcripts and responses as plain lines.
type ConsolePresenter struct {
	mu      sync.Mutex
	w       io.Writer
	botName string
	now     func() time.Time
}

// NewConsolePresenter writes to w, labelling responses with botName.
func NewConsolePresenter(w io.Writer, botName string) *ConsolePresenter {
	return &ConsolePresenter{w: w, botName: botName, now: time.Now}
}

func (c *ConsolePresenter) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s "+format+"\n", append([]interface{}{c.now().Format("15:04:05")}, args...)...)
}

func (c *ConsolePresenter) AddTranscript(text string, isWake bool) {
	if isWake {
		c.printf("[wake] %s", text)
		return
	}
	c.printf("[heard] %s", text)
}

func (c *ConsolePresenter) SetResponse(text string) {
	c.printf("[%s] %s", c.botName, text)
}

func (c *ConsolePresenter) Warn(msg string) {
	c.printf("[warning] %s", msg)
}
