package llm

import (
	"context"
	"strings"
	"time"

	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/internal/voice"
)

// FallbackResponse is returned whenever the model cannot produce a reply.
const FallbackResponse = "I'm sorry, I'm having trouble generating a response right now."

// Responder implements voice.Responder on top of a ChatCompleter.
type Responder struct {
	Chat        ChatCompleter
	BotName     string
	Temperature float64
	MaxTokens   int
	// Timeout bounds one Respond call (default 30s).
	Timeout time.Duration
}

// Respond never returns an empty string or an error.
func (r *Responder) Respond(ctx context.Context, req voice.Request) string {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.Chat.CreateChatCompletion(ctx, ChatRequest{
		Messages:    BuildMessages(r.BotName, req),
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		logging.WarnwCtx(ctx, "llm: response generation failed", "mode", req.Mode.String(), "err", err)
		return FallbackResponse
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		logging.WarnwCtx(ctx, "llm: empty completion", "model", resp.Model)
		return FallbackResponse
	}
	logging.DebugwCtx(ctx, "llm: response generated", "model", resp.Model, "llm_ms", time.Since(start).Milliseconds(), "chars", len(text))
	return text
}
