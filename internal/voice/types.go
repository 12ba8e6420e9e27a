package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects the kind of response produced on a wake event.
type Mode int32

const (
	ModeAnswer Mode = iota
	ModeOpinion
	ModeSummarize
)

// ErrUnknownMode is returned by ParseMode for names it does not know.
var ErrUnknownMode = errors.New("unknown assistant mode")

var modeNames = [...]string{"answer", "opinion", "summarize"}

func (m Mode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int32(m))
}

func (m Mode) Valid() bool { return m >= ModeAnswer && m <= ModeSummarize }

// ParseMode maps "answer", "opinion" or "summarize" (any case) onto a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return ModeAnswer, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber converts a finite PCM16 clip into text. Empty input yields an
// empty Transcript and no error.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Transcript, error)
}

// Request is what a Responder is asked to answer.
type Request struct {
	Mode    Mode
	Context string
	// Instruction is the command spoken after the activation phrase, if any.
	Instruction string
}

// Responder generates a reply. It never fails; on internal errors it returns
// a fixed fallback sentence.
type Responder interface {
	Respond(ctx context.Context, req Request) string
}

// Synthesizer speaks text. The pipeline calls it on a detached goroutine.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Presenter receives transcripts, responses and degraded-mode warnings.
type Presenter interface {
	AddTranscript(text string, isWake bool)
	SetResponse(text string)
	Warn(msg string)
}

// Segmenter is the part of audio.Segmenter the pipeline drives.
type Segmenter interface {
	Process(chunk []byte) [][]byte
	Flush() []byte
	Reset()
}

// Utterance is one segmented clip on its way to transcription.
type Utterance struct {
	ID       string
	PCM      []byte
	Duration time.Duration
}

type noopPresenter struct{}

func (noopPresenter) AddTranscript(string, bool) {}
func (noopPresenter) SetResponse(string)         {}
func (noopPresenter) Warn(string)                {}

// MultiPresenter fans notifications out to every member.
type MultiPresenter []Presenter

func (m MultiPresenter) AddTranscript(text string, isWake bool) {
	for _, p := range m {
		p.AddTranscript(text, isWake)
	}
}

func (m MultiPresenter) SetResponse(text string) {
	for _, p := range m {
		p.SetResponse(text)
	}
}

func (m MultiPresenter) Warn(msg string) {
	for _, p := range m {
		p.Warn(msg)
	}
}
