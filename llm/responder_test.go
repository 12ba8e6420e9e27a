package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meeting-copilot/internal/voice"
)

type stubChat struct {
	got  ChatRequest
	resp ChatResponse
	err  error
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("watson", voice.Request{Mode: voice.ModeSummarize, Context: "a\nb", Instruction: "keep it short"})
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if !strings.HasPrefix(msgs[0].Content, "You are Watson, an AI meeting copilot assistant.") {
		t.Fatalf("system prompt not named after bot: %q", msgs[0].Content[:40])
	}
	user := msgs[1].Content
	if !strings.HasPrefix(user, "Recent conversation:\na\nb\n\nTask: Summarize the key points") {
		t.Fatalf("unexpected user message %q", user)
	}
	if !strings.HasSuffix(user, "\n\nAdditional instruction: keep it short") {
		t.Fatalf("instruction missing: %q", user)
	}
	noInstr := BuildMessages("watson", voice.Request{Mode: voice.ModeAnswer})
	if strings.Contains(noInstr[1].Content, "Additional instruction") {
		t.Fatalf("empty instruction should be omitted")
	}
}

func TestModePromptDefaultsToAnswer(t *testing.T) {
	if ModePrompt(voice.Mode(42)) != ModePrompt(voice.ModeAnswer) {
		t.Fatalf("unknown mode should use the answer prompt")
	}
}

func TestResponderFallback(t *testing.T) {
	r := &Responder{Chat: &stubChat{err: errors.New("down")}, BotName: "watson"}
	if got := r.Respond(context.Background(), voice.Request{}); got != FallbackResponse {
		t.Fatalf("want fallback got %q", got)
	}
	r.Chat = &stubChat{resp: ChatResponse{Content: "   "}}
	if got := r.Respond(context.Background(), voice.Request{}); got != FallbackResponse {
		t.Fatalf("empty completion should fall back, got %q", got)
	}
}

func TestResponderPassesSettings(t *testing.T) {
	chat := &stubChat{resp: ChatResponse{Content: " Agreed. "}}
	r := &Responder{Chat: chat, BotName: "watson", Temperature: 0.7, MaxTokens: 1024}
	got := r.Respond(context.Background(), voice.Request{Mode: voice.ModeOpinion, Context: "x"})
	if got != "Agreed." {
		t.Fatalf("unexpected response %q", got)
	}
	if chat.got.Temperature != 0.7 || chat.got.MaxTokens != 1024 || len(chat.got.Messages) != 2 {
		t.Fatalf("request not forwarded: %+v", chat.got)
	}
}
