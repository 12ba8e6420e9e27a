// Package config loads copilot settings from an optional YAML file, a .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meeting-copilot/internal/voice"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type STTConfig struct {
	Provider  string `yaml:"provider"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Language  string `yaml:"language"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	FallbackModel string  `yaml:"fallback_model"`
	ProjectID     string  `yaml:"project_id"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	TimeoutMs     int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Provider  string `yaml:"provider"`
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
	APIKey    string `yaml:"api_key"`
	Voice     string `yaml:"voice"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type ControlConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type SessionLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type FileConfig struct {
	Path     string `yaml:"path"`
	Realtime bool   `yaml:"realtime"`
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	GuildID   string `yaml:"guild_id"`
	ChannelID string `yaml:"channel_id"`
}

type Config struct {
	BotName              string   `yaml:"bot_name"`
	WakeAlternates       []string `yaml:"wake_alternates"`
	SampleRate           int      `yaml:"sample_rate"`
	Channels             int      `yaml:"channels"`
	ChunkSize            int      `yaml:"chunk_size"`
	VADAggressiveness    int      `yaml:"vad_aggressiveness"`
	VADFrameMs           int      `yaml:"vad_frame_ms"`
	VADPaddingMs         int      `yaml:"vad_padding_ms"`
	PrewakeBufferSeconds float64  `yaml:"prewake_buffer_seconds"`
	MaxUtteranceSeconds  float64  `yaml:"max_utterance_seconds"`
	AudioSource          string   `yaml:"audio_source"`
	DefaultMode          string   `yaml:"default_mode"`
	QueueSize            int      `yaml:"queue_size"`
	HistorySize          int      `yaml:"history_size"`
	ContextEntries       int      `yaml:"context_entries"`
	LatencyTargetMs      int      `yaml:"latency_target_ms"`
	LogLevel             string   `yaml:"log_level"`

	STT        STTConfig        `yaml:"stt"`
	LLM        LLMConfig        `yaml:"llm"`
	TTS        TTSConfig        `yaml:"tts"`
	Control    ControlConfig    `yaml:"control"`
	SessionLog SessionLogConfig `yaml:"session_log"`
	File       FileConfig       `yaml:"file"`
	Discord    DiscordConfig    `yaml:"discord"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		BotName:              "watson",
		SampleRate:           16000,
		Channels:             1,
		ChunkSize:            480,
		VADAggressiveness:    2,
		VADFrameMs:           30,
		VADPaddingMs:         300,
		PrewakeBufferSeconds: 20,
		MaxUtteranceSeconds:  30,
		AudioSource:          "microphone",
		DefaultMode:          "answer",
		QueueSize:            200,
		HistorySize:          50,
		ContextEntries:       10,
		LatencyTargetMs:      2500,
		LogLevel:             "info",
		STT: STTConfig{
			Provider:  "whisper",
			URL:       "http://127.0.0.1:9000/asr",
			Model:     "en-US_BroadbandModel",
			TimeoutMs: 15000,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   1024,
			TimeoutMs:   30000,
		},
		TTS: TTSConfig{
			Provider:  "none",
			Voice:     "en-US_AllisonV3Voice",
			TimeoutMs: 10000,
		},
		Control:    ControlConfig{Enabled: true, ListenAddr: "127.0.0.1:8765"},
		SessionLog: SessionLogConfig{Dir: "logs"},
		File:       FileConfig{Realtime: true},
	}
}

// Load applies, on top of Default, the YAML file at path (skipped when
// path is empty), the given .env files and the process environment, then
// validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := Read(path, envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only need a subset
// of the settings.
func Read(path string, envFiles ...string) (*Config, error) {
	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates it.
// The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads each existing file into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Mode returns the parsed default mode. Call after Validate.
func (c *Config) Mode() voice.Mode {
	m, _ := voice.ParseMode(c.DefaultMode)
	return m
}

func (c *Config) LatencyTarget() time.Duration {
	return time.Duration(c.LatencyTargetMs) * time.Millisecond
}

// SessionLogDir is the session log directory, or "" when disabled.
func (c *Config) SessionLogDir() string {
	if !c.SessionLog.Enabled {
		return ""
	}
	return c.SessionLog.Dir
}

// ModelName is the configured model or the provider's default.
func (l LLMConfig) ModelName() string {
	if l.Model != "" {
		return l.Model
	}
	switch l.Provider {
	case "openai":
		return "gpt-4o-mini"
	case "ollama":
		return "llama3"
	case "claude":
		return "claude-sonnet-4-5"
	case "watsonx":
		return "meta-llama/llama-3-3-70b-instruct"
	}
	return ""
}

// BaseURLOrDefault fills in the endpoint for providers that have a
// well-known one. Claude leaves it to the SDK.
func (l LLMConfig) BaseURLOrDefault() string {
	if l.BaseURL != "" {
		return l.BaseURL
	}
	switch l.Provider {
	case "ollama":
		return "http://localhost:11434/v1"
	case "watsonx":
		return "https://us-south.ml.cloud.ibm.com"
	}
	return ""
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (s STTConfig) Timeout() time.Duration { return ms(s.TimeoutMs) }
func (l LLMConfig) Timeout() time.Duration { return ms(l.TimeoutMs) }
func (t TTSConfig) Timeout() time.Duration { return ms(t.TimeoutMs) }

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.WakeAlternates = append([]string(nil), c.WakeAlternates...)
	cp.STT.APIKey = mask(c.STT.APIKey)
	cp.LLM.APIKey = mask(c.LLM.APIKey)
	cp.TTS.APIKey = mask(c.TTS.APIKey)
	cp.TTS.AuthToken = mask(c.TTS.AuthToken)
	cp.Discord.Token = mask(c.Discord.Token)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
