package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/meeting-copilot/internal/voice"
)

var (
	audioSources  = []string{"microphone", "system", "both", "file", "discord"}
	sttProviders  = []string{"whisper", "watson"}
	llmProviders  = []string{"http", "openai", "ollama", "claude", "watsonx"}
	ttsProviders  = []string{"http", "watson", "none"}
	logLevels     = []string{"debug", "info", "warn", "warning", "error"}
	vadRates      = []int{8000, 16000, 32000, 48000}
	vadFrameSizes = []int{10, 20, 30}
)

// Validate checks that c holds a coherent set of values and returns every
// failure joined together.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.BotName) == "" {
		bad("bot_name is required")
	}
	if !slices.Contains(vadRates, c.SampleRate) {
		bad("sample_rate %d is invalid; valid values: 8000, 16000, 32000, 48000", c.SampleRate)
	}
	if c.Channels != 1 {
		bad("channels %d is invalid; voice activity detection needs mono audio", c.Channels)
	}
	if c.ChunkSize <= 0 {
		bad("chunk_size must be positive")
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		bad("vad_aggressiveness %d is out of range [0, 3]", c.VADAggressiveness)
	}
	if !slices.Contains(vadFrameSizes, c.VADFrameMs) {
		bad("vad_frame_ms %d is invalid; valid values: 10, 20, 30", c.VADFrameMs)
	}
	if c.VADPaddingMs < c.VADFrameMs {
		bad("vad_padding_ms %d must be at least vad_frame_ms %d", c.VADPaddingMs, c.VADFrameMs)
	}
	if c.PrewakeBufferSeconds <= 0 {
		bad("prewake_buffer_seconds must be positive")
	}
	if c.MaxUtteranceSeconds < 0 {
		bad("max_utterance_seconds must not be negative")
	}
	if !slices.Contains(audioSources, c.AudioSource) {
		bad("audio_source %q is invalid; valid values: %s", c.AudioSource, strings.Join(audioSources, ", "))
	}
	if _, err := voice.ParseMode(c.DefaultMode); err != nil {
		bad("default_mode: %v", err)
	}
	if c.QueueSize <= 0 || c.HistorySize <= 0 || c.ContextEntries <= 0 {
		bad("queue_size, history_size and context_entries must be positive")
	}
	if c.LatencyTargetMs < 0 {
		bad("latency_target_ms must not be negative")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		bad("log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel)
	}

	switch c.STT.Provider {
	case "whisper":
		if c.STT.URL == "" {
			bad("stt.url is required for provider whisper")
		}
	case "watson":
		if c.STT.URL == "" || c.STT.APIKey == "" {
			bad("stt.url and stt.api_key are required for provider watson (IBM_STT_URL, IBM_STT_API_KEY)")
		}
	default:
		bad("stt.provider %q is invalid; valid values: %s", c.STT.Provider, strings.Join(sttProviders, ", "))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			bad("llm.api_key is required for provider openai (OPENAI_API_KEY)")
		}
	case "http":
		if c.LLM.BaseURL == "" {
			bad("llm.base_url is required for provider http")
		}
	case "claude":
		if c.LLM.APIKey == "" {
			bad("llm.api_key is required for provider claude (ANTHROPIC_API_KEY)")
		}
	case "watsonx":
		if c.LLM.APIKey == "" {
			bad("llm.api_key is required for provider watsonx (WATSONX_API_KEY)")
		}
		if c.LLM.ProjectID == "" {
			bad("llm.project_id is required for provider watsonx (WATSONX_PROJECT_ID)")
		}
	case "ollama":
	default:
		bad("llm.provider %q is invalid; valid values: %s", c.LLM.Provider, strings.Join(llmProviders, ", "))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		bad("llm.temperature %.2f is out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		bad("llm.max_tokens must be positive")
	}

	switch c.TTS.Provider {
	case "http":
		if c.TTS.URL == "" {
			bad("tts.url is required for provider http")
		}
	case "watson":
		if c.TTS.URL == "" || c.TTS.APIKey == "" {
			bad("tts.url and tts.api_key are required for provider watson")
		}
	case "none":
	default:
		bad("tts.provider %q is invalid; valid values: %s", c.TTS.Provider, strings.Join(ttsProviders, ", "))
	}

	if c.Control.Enabled && c.Control.ListenAddr == "" {
		bad("control.listen_addr is required when control is enabled")
	}
	if c.SessionLog.Enabled && strings.TrimSpace(c.SessionLog.Dir) == "" {
		bad("session_log.dir is required when the session log is enabled")
	}
	if c.AudioSource == "file" && c.File.Path == "" {
		bad("file.path is required for audio_source file")
	}
	if c.AudioSource == "discord" && (c.Discord.Token == "" || c.Discord.GuildID == "" || c.Discord.ChannelID == "") {
		bad("discord.token, discord.guild_id and discord.channel_id are required for audio_source discord")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
