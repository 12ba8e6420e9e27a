package app

import (
	"errors"
	"testing"

	"github.com/meeting-copilot/internal/capture"
	"github.com/meeting-copilot/internal/config"
	"github.com/meeting-copilot/internal/control"
	"github.com/meeting-copilot/internal/voice"
	"github.com/meeting-copilot/llm"
)

func TestNewTranscriberByProvider(t *testing.T) {
	cfg := config.Default()
	stt, err := NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("whisper: %v", err)
	}
	if w, ok := stt.(*voice.WhisperClient); !ok || w.URL != cfg.STT.URL {
		t.Fatalf("want whisper client got %T", stt)
	}

	cfg.STT.Provider = "watson"
	cfg.STT.APIKey = "key"
	stt, err = NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("watson: %v", err)
	}
	if w, ok := stt.(*voice.WatsonSTT); !ok || w.Model != "en-US_BroadbandModel" || w.APIKey != "key" {
		t.Fatalf("want watson client got %#v", stt)
	}

	cfg.STT.Provider = "vosk"
	if _, err := NewTranscriber(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig got %v", err)
	}
}

func TestNewChatByProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "http"
	cfg.LLM.BaseURL = "http://127.0.0.1:8000/v1/"
	chat, err := NewChat(cfg)
	if err != nil {
		t.Fatalf("http: %v", err)
	}
	if c, ok := chat.(*llm.Client); !ok || c.BaseURL != "http://127.0.0.1:8000/v1" || c.HTTP.Timeout != cfg.LLM.Timeout() {
		t.Fatalf("unexpected http client %#v", chat)
	}

	cfg.LLM.Provider = "ollama"
	if chat, err = NewChat(cfg); err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, ok := chat.(*llm.OpenAIClient); !ok {
		t.Fatalf("want openai client for ollama got %T", chat)
	}

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	if _, err := NewChat(cfg); err == nil {
		t.Fatalf("openai without a key should fail")
	}

	cfg.LLM.Provider = "claude"
	cfg.LLM.Model = ""
	cfg.LLM.APIKey = "sk-ant-test"
	if chat, err = NewChat(cfg); err != nil {
		t.Fatalf("claude: %v", err)
	}
	if _, ok := chat.(*llm.ClaudeClient); !ok {
		t.Fatalf("want claude client got %T", chat)
	}

	cfg.LLM.Provider = "watsonx"
	cfg.LLM.BaseURL = ""
	cfg.LLM.APIKey = "ibm-key"
	cfg.LLM.ProjectID = "proj"
	if chat, err = NewChat(cfg); err != nil {
		t.Fatalf("watsonx: %v", err)
	}
	w, ok := chat.(*llm.WatsonxClient)
	if !ok || w.BaseURL != "https://us-south.ml.cloud.ibm.com" || w.Model != "meta-llama/llama-3-3-70b-instruct" || w.ProjectID != "proj" {
		t.Fatalf("unexpected watsonx client %#v", chat)
	}
	cfg.LLM.ProjectID = ""
	if _, err := NewChat(cfg); err == nil {
		t.Fatalf("watsonx without a project should fail")
	}
}

func TestNewModelListerByProvider(t *testing.T) {
	if _, err := NewModelLister(config.LLMConfig{Provider: "watsonx"}); err != nil {
		t.Fatalf("watsonx listing needs no credentials: %v", err)
	}
	if _, err := NewModelLister(config.LLMConfig{Provider: "ollama"}); err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, err := NewModelLister(config.LLMConfig{Provider: "claude"}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("claude without a key: want ErrInvalidConfig got %v", err)
	}
	l, err := NewModelLister(config.LLMConfig{Provider: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := l.(*llm.OpenAIClient); !ok {
		t.Fatalf("want openai client got %T", l)
	}
	if _, err := NewModelLister(config.LLMConfig{Provider: "http"}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("http cannot list: want ErrInvalidConfig got %v", err)
	}
}

func TestNewSynthesizerByProvider(t *testing.T) {
	cfg := config.Default()
	if _, ok := NewSynthesizer(cfg).(voice.LogSynthesizer); !ok {
		t.Fatalf("provider none should log")
	}
	cfg.TTS.Provider = "watson"
	cfg.TTS.URL = "https://tts.example"
	cfg.TTS.APIKey = "key"
	out, ok := NewSynthesizer(cfg).(*voice.SpeechOutput)
	if !ok {
		t.Fatalf("want speech output")
	}
	if tts := out.TTS.(*voice.TTSClient); tts.APIKey != "key" || tts.Voice != "en-US_AllisonV3Voice" {
		t.Fatalf("unexpected tts client %#v", tts)
	}
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	cases := map[string]string{
		"microphone": "microphone",
		"system":     "system",
		"both":       "microphone+system",
	}
	for name, want := range cases {
		src, err := NewSource(cfg, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if src.Name() != want {
			t.Fatalf("%s: name %q want %q", name, src.Name(), want)
		}
	}
	if _, err := NewSource(cfg, "file"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("file without path: %v", err)
	}
	cfg.File.Path = "meeting.wav"
	if src, err := NewSource(cfg, "file"); err != nil {
		t.Fatalf("file: %v", err)
	} else if _, ok := src.(*capture.FileSource); !ok {
		t.Fatalf("want file source got %T", src)
	}
	if _, err := NewSource(cfg, "radio"); !errors.Is(err, control.ErrUnknownSource) {
		t.Fatalf("want ErrUnknownSource got %v", err)
	}
}
