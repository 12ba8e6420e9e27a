package config

import (
	"fmt"
	"strconv"
	"strings"
)

type binding struct {
	env string
	set func(c *Config, v string) error
}

func str(f func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *f(c) = v; return nil }
}

func integer(f func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

func float(f func(c *Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

func boolean(f func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*f(c) = b
		return nil
	}
}

func list(f func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*f(c) = out
		return nil
	}
}

var (
	llmKey     = str(func(c *Config) *string { return &c.LLM.APIKey })
	llmBaseURL = str(func(c *Config) *string { return &c.LLM.BaseURL })
)

// providerBindings are the vendor's own variable names, applied only for the
// selected llm provider.
var providerBindings = map[string][]binding{
	"openai": {
		{"OPENAI_API_KEY", llmKey},
		{"OPENAI_BASE_URL", llmBaseURL},
	},
	"claude": {
		{"ANTHROPIC_API_KEY", llmKey},
		{"ANTHROPIC_BASE_URL", llmBaseURL},
	},
	"watsonx": {
		{"WATSONX_API_KEY", llmKey},
		{"WATSONX_URL", llmBaseURL},
		{"WATSONX_PROJECT_ID", str(func(c *Config) *string { return &c.LLM.ProjectID })},
	},
}

// bindings are applied in order, so conventional names listed first are
// overridden by their COPILOT_ equivalents.
var bindings = []binding{
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
	{"IBM_STT_API_KEY", str(func(c *Config) *string { return &c.STT.APIKey })},
	{"IBM_STT_URL", str(func(c *Config) *string { return &c.STT.URL })},
	{"DISCORD_BOT_TOKEN", str(func(c *Config) *string { return &c.Discord.Token })},

	{"COPILOT_BOT_NAME", str(func(c *Config) *string { return &c.BotName })},
	{"COPILOT_WAKE_ALTERNATES", list(func(c *Config) *[]string { return &c.WakeAlternates })},
	{"COPILOT_SAMPLE_RATE", integer(func(c *Config) *int { return &c.SampleRate })},
	{"COPILOT_CHANNELS", integer(func(c *Config) *int { return &c.Channels })},
	{"COPILOT_CHUNK_SIZE", integer(func(c *Config) *int { return &c.ChunkSize })},
	{"COPILOT_VAD_AGGRESSIVENESS", integer(func(c *Config) *int { return &c.VADAggressiveness })},
	{"COPILOT_VAD_FRAME_MS", integer(func(c *Config) *int { return &c.VADFrameMs })},
	{"COPILOT_VAD_PADDING_MS", integer(func(c *Config) *int { return &c.VADPaddingMs })},
	{"COPILOT_PREWAKE_BUFFER_SECONDS", float(func(c *Config) *float64 { return &c.PrewakeBufferSeconds })},
	{"COPILOT_MAX_UTTERANCE_SECONDS", float(func(c *Config) *float64 { return &c.MaxUtteranceSeconds })},
	{"COPILOT_AUDIO_SOURCE", str(func(c *Config) *string { return &c.AudioSource })},
	{"COPILOT_DEFAULT_MODE", str(func(c *Config) *string { return &c.DefaultMode })},
	{"COPILOT_QUEUE_SIZE", integer(func(c *Config) *int { return &c.QueueSize })},
	{"COPILOT_HISTORY_SIZE", integer(func(c *Config) *int { return &c.HistorySize })},
	{"COPILOT_CONTEXT_ENTRIES", integer(func(c *Config) *int { return &c.ContextEntries })},
	{"COPILOT_LATENCY_TARGET_MS", integer(func(c *Config) *int { return &c.LatencyTargetMs })},
	{"COPILOT_LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},

	{"COPILOT_STT_PROVIDER", str(func(c *Config) *string { return &c.STT.Provider })},
	{"COPILOT_STT_URL", str(func(c *Config) *string { return &c.STT.URL })},
	{"COPILOT_STT_API_KEY", str(func(c *Config) *string { return &c.STT.APIKey })},
	{"COPILOT_STT_MODEL", str(func(c *Config) *string { return &c.STT.Model })},
	{"COPILOT_STT_LANGUAGE", str(func(c *Config) *string { return &c.STT.Language })},
	{"COPILOT_STT_TIMEOUT_MS", integer(func(c *Config) *int { return &c.STT.TimeoutMs })},

	{"COPILOT_LLM_PROVIDER", str(func(c *Config) *string { return &c.LLM.Provider })},
	{"COPILOT_LLM_BASE_URL", str(func(c *Config) *string { return &c.LLM.BaseURL })},
	{"COPILOT_LLM_API_KEY", str(func(c *Config) *string { return &c.LLM.APIKey })},
	{"COPILOT_LLM_MODEL", str(func(c *Config) *string { return &c.LLM.Model })},
	{"COPILOT_LLM_FALLBACK_MODEL", str(func(c *Config) *string { return &c.LLM.FallbackModel })},
	{"COPILOT_LLM_PROJECT_ID", str(func(c *Config) *string { return &c.LLM.ProjectID })},
	{"COPILOT_LLM_TEMPERATURE", float(func(c *Config) *float64 { return &c.LLM.Temperature })},
	{"COPILOT_LLM_MAX_TOKENS", integer(func(c *Config) *int { return &c.LLM.MaxTokens })},
	{"COPILOT_LLM_TIMEOUT_MS", integer(func(c *Config) *int { return &c.LLM.TimeoutMs })},

	{"COPILOT_TTS_PROVIDER", str(func(c *Config) *string { return &c.TTS.Provider })},
	{"COPILOT_TTS_URL", str(func(c *Config) *string { return &c.TTS.URL })},
	{"COPILOT_TTS_AUTH_TOKEN", str(func(c *Config) *string { return &c.TTS.AuthToken })},
	{"COPILOT_TTS_API_KEY", str(func(c *Config) *string { return &c.TTS.APIKey })},
	{"COPILOT_TTS_VOICE", str(func(c *Config) *string { return &c.TTS.Voice })},
	{"COPILOT_TTS_TIMEOUT_MS", integer(func(c *Config) *int { return &c.TTS.TimeoutMs })},

	{"COPILOT_CONTROL_ENABLED", boolean(func(c *Config) *bool { return &c.Control.Enabled })},
	{"COPILOT_CONTROL_LISTEN_ADDR", str(func(c *Config) *string { return &c.Control.ListenAddr })},
	{"COPILOT_SESSION_LOG_ENABLED", boolean(func(c *Config) *bool { return &c.SessionLog.Enabled })},
	{"COPILOT_SESSION_LOG_DIR", str(func(c *Config) *string { return &c.SessionLog.Dir })},
	{"COPILOT_FILE_PATH", str(func(c *Config) *string { return &c.File.Path })},
	{"COPILOT_FILE_REALTIME", boolean(func(c *Config) *bool { return &c.File.Realtime })},
	{"COPILOT_DISCORD_TOKEN", str(func(c *Config) *string { return &c.Discord.Token })},
	{"COPILOT_DISCORD_GUILD_ID", str(func(c *Config) *string { return &c.Discord.GuildID })},
	{"COPILOT_DISCORD_CHANNEL_ID", str(func(c *Config) *string { return &c.Discord.ChannelID })},
}

// ApplyEnv overrides fields from lookup (os.LookupEnv in production).
// Empty values are ignored. Vendor variables such as ANTHROPIC_API_KEY are
// read for the provider chosen after COPILOT_LLM_PROVIDER is applied.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	provider := c.LLM.Provider
	if v, ok := lookup("COPILOT_LLM_PROVIDER"); ok && v != "" {
		provider = v
	}
	return c.apply(append(append([]binding(nil), providerBindings[provider]...), bindings...), lookup)
}

// ApplyVendorEnv reads only the vendor variables of c.LLM.Provider, for a
// provider picked after the configuration was read.
func (c *Config) ApplyVendorEnv(lookup func(string) (string, bool)) error {
	return c.apply(providerBindings[c.LLM.Provider], lookup)
}

func (c *Config) apply(bs []binding, lookup func(string) (string, bool)) error {
	for _, b := range bs {
		v, ok := lookup(b.env)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, b.env, v, err)
		}
	}
	return nil
}
