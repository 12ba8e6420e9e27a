package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

// AudioSynthesizer turns text into an encoded audio clip.
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// AudioPlayer plays an encoded clip and returns when playback ends.
type AudioPlayer interface {
	Play(ctx context.Context, data []byte, contentType string) error
}

// SpeechOutput is the Synthesizer made of a TTS back-end and a player.
type SpeechOutput struct {
	TTS    AudioSynthesizer
	Player AudioPlayer
}

// Speak synthesizes text and plays it.
func (s *SpeechOutput) Speak(ctx context.Context, text string) error {
	start := time.Now()
	data, contentType, err := s.TTS.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	logging.Debugw("speech synthesized", "bytes", len(data), "content_type", contentType, "tts_ms", time.Since(start).Milliseconds())
	if s.Player == nil {
		return nil
	}
	if err := s.Player.Play(ctx, data, contentType); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

// LogSynthesizer stands in for speech output when none is configured.
type LogSynthesizer struct{}

func (LogSynthesizer) Speak(ctx context.Context, text string) error {
	logging.Infow("speech output disabled; response not spoken", "chars", len(text))
	return nil
}
