package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/meeting-copilot/internal/capture"
	"github.com/meeting-copilot/internal/config"
	"github.com/meeting-copilot/internal/control"
	"github.com/meeting-copilot/internal/playback"
	"github.com/meeting-copilot/internal/voice"
	"github.com/meeting-copilot/llm"
)

// NewTranscriber builds the speech to text back-end named by cfg.STT.
func NewTranscriber(cfg *config.Config) (voice.Transcriber, error) {
	s := cfg.STT
	switch s.Provider {
	case "whisper":
		return &voice.WhisperClient{
			URL:       s.URL,
			AuthToken: s.APIKey,
			Language:  s.Language,
			Timeout:   s.Timeout(),
		}, nil
	case "watson":
		return &voice.WatsonSTT{
			URL:     s.URL,
			APIKey:  s.APIKey,
			Model:   s.Model,
			Timeout: s.Timeout(),
		}, nil
	}
	return nil, fmt.Errorf("%w: stt provider %q", config.ErrInvalidConfig, s.Provider)
}

// NewChat builds the chat completion back-end named by cfg.LLM.
func NewChat(cfg *config.Config) (llm.ChatCompleter, error) {
	l := cfg.LLM
	switch l.Provider {
	case "http":
		c := llm.NewClient(l.BaseURL, l.APIKey, l.ModelName(), l.FallbackModel)
		if l.TimeoutMs > 0 {
			c.HTTP.Timeout = l.Timeout()
		}
		return c, nil
	case "openai":
		return llm.NewOpenAIClient(l.APIKey, l.BaseURL, l.ModelName(), l.FallbackModel, l.Timeout())
	case "ollama":
		// ollama ignores the key but the client requires one
		key := l.APIKey
		if key == "" {
			key = "ollama"
		}
		return llm.NewOpenAIClient(key, l.BaseURLOrDefault(), l.ModelName(), l.FallbackModel, l.Timeout())
	case "claude":
		return llm.NewClaudeClient(l.APIKey, l.BaseURL, l.ModelName(), l.FallbackModel, l.Timeout())
	case "watsonx":
		return llm.NewWatsonxClient(l.BaseURLOrDefault(), l.APIKey, l.ProjectID, l.ModelName(), l.FallbackModel, l.Timeout())
	}
	return nil, fmt.Errorf("%w: llm provider %q", config.ErrInvalidConfig, l.Provider)
}

// NewModelLister builds the model listing client for l.Provider. Only the
// credentials the listing itself needs are required.
func NewModelLister(l config.LLMConfig) (llm.ModelLister, error) {
	switch l.Provider {
	case "openai", "ollama", "claude":
		if l.Provider == "ollama" && l.APIKey == "" {
			l.APIKey = "ollama"
		}
		if l.APIKey == "" {
			return nil, fmt.Errorf("%w: listing %s models needs llm.api_key", config.ErrInvalidConfig, l.Provider)
		}
		chat, err := NewChat(&config.Config{LLM: l})
		if err != nil {
			return nil, err
		}
		return chat.(llm.ModelLister), nil
	case "watsonx":
		// the foundation model specs are public
		return &llm.WatsonxClient{BaseURL: strings.TrimRight(l.BaseURLOrDefault(), "/"), HTTP: &http.Client{Timeout: l.Timeout()}}, nil
	}
	return nil, fmt.Errorf("%w: llm provider %q cannot list models", config.ErrInvalidConfig, l.Provider)
}

// NewResponder wraps chat with the copilot prompts.
func NewResponder(cfg *config.Config, chat llm.ChatCompleter) *llm.Responder {
	return &llm.Responder{
		Chat:        chat,
		BotName:     cfg.BotName,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	}
}

// NewSynthesizer builds speech output. Provider none logs responses instead.
func NewSynthesizer(cfg *config.Config) voice.Synthesizer {
	t := cfg.TTS
	switch t.Provider {
	case "http", "watson":
		tts := &voice.TTSClient{
			URL:       t.URL,
			AuthToken: t.AuthToken,
			Voice:     t.Voice,
			Timeout:   t.Timeout(),
		}
		if t.Provider == "watson" {
			tts.APIKey = t.APIKey
		}
		return &voice.SpeechOutput{TTS: tts, Player: playback.NewPlayer()}
	}
	return voice.LogSynthesizer{}
}

// Format is the capture layout the pipeline expects.
func Format(cfg *config.Config) capture.Format {
	return capture.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels, ChunkFrames: cfg.ChunkSize}
}

// NewSource builds the capture source for name, one of the audio_source
// values.
func NewSource(cfg *config.Config, name string) (capture.Source, error) {
	f := Format(cfg)
	switch name {
	case "microphone":
		return capture.NewMicrophone(f), nil
	case "system":
		return capture.NewLoopback(f), nil
	case "both":
		return capture.NewMultiSource(capture.NewMicrophone(f), capture.NewLoopback(f)), nil
	case "file":
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("%w: file source needs file.path", config.ErrInvalidConfig)
		}
		return capture.NewFileSource(cfg.File.Path, cfg.File.Realtime, f), nil
	case "discord":
		d, err := capture.NewDiscordSource(cfg.Discord.Token, cfg.Discord.GuildID, cfg.Discord.ChannelID, f)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", control.ErrUnknownSource, name)
}
