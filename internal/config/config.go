// Package config provides the configuration schema, loader, and polling file
// watcher for the velatura persona voice server.
package config

// LogLevel controls log verbosity for the velatura server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureMode selects how the capture engine decides when an utterance ends.
type CaptureMode string

const (
	// CaptureVAD uses energy-based voice activity detection with a silence
	// timeout.
	CaptureVAD CaptureMode = "vad"

	// CaptureFixed records for a fixed duration regardless of speech content.
	CaptureFixed CaptureMode = "fixed"
)

// IsValid reports whether m is a recognised capture mode.
func (m CaptureMode) IsValid() bool {
	return m == CaptureVAD || m == CaptureFixed
}

// Config is the root configuration structure for velatura.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Persona   PersonaConfig   `yaml:"persona"`
	Filler    FillerConfig    `yaml:"filler"`
	Capture   CaptureConfig   `yaml:"capture"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5001").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser context. Empty means no cross-origin access.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// ProvidersConfig declares which backend serves each remote capability.
type ProvidersConfig struct {
	Completer   ProviderEntry `yaml:"completer"`
	Transcriber ProviderEntry `yaml:"transcriber"`
	Synthesizer ProviderEntry `yaml:"synthesizer"`
}

// ProviderEntry is the common configuration block shared by all capability
// backends.
type ProviderEntry struct {
	// Name selects the backend implementation (e.g., "openai", "anyllm",
	// "whisperlocal"). An empty name means "openai".
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend's API. When empty the
	// OPENAI_API_KEY environment variable is consulted for OpenAI backends.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default API endpoint. For the
	// "whisperlocal" transcriber this is the whisper-server address and is
	// required.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend (e.g., "gpt-4",
	// "tts-1", "llama3.1").
	Model string `yaml:"model"`

	// Provider is the upstream provider name for the "anyllm" completer
	// (e.g., "ollama", "anthropic"). Ignored by other backends.
	Provider string `yaml:"provider"`

	// Voice is the synthesis voice for the synthesizer (e.g., "shimmer").
	Voice string `yaml:"voice"`
}

// PersonaConfig describes the scripted character the server speaks as.
type PersonaConfig struct {
	// Name is the persona's display name (e.g., "Frida Kahlo").
	Name string `yaml:"name"`

	// SystemPrompt is the fixed preamble injected before every conversation
	// replay. It defines the persona's voice, tone, and reply-length rules.
	SystemPrompt string `yaml:"system_prompt"`

	// WelcomeText is spoken when a session starts.
	WelcomeText string `yaml:"welcome_text"`

	// FarewellText is spoken when an exit intent ends the conversation.
	FarewellText string `yaml:"farewell_text"`

	// MaxReplyTokens bounds the completion output length. Default: 150.
	MaxReplyTokens int `yaml:"max_reply_tokens"`
}

// FillerConfig holds the fixed set of acknowledgement phrases that are
// pre-synthesized at startup and played while a real reply is generated.
type FillerConfig struct {
	// Phrases is the phrase set. When empty, [DefaultFillerPhrases] is used.
	Phrases []string `yaml:"phrases"`
}

// DefaultFillerPhrases is the built-in acknowledgement phrase set.
var DefaultFillerPhrases = []string{
	"Hmm, let me think...",
	"Ah, I see...",
	"One moment, my friend...",
	"Mmm...",
	"Yes, yes...",
}

// CaptureConfig holds the capture engine tunables. Threshold and silence
// limit are environment-sensitive (microphone gain, ambient noise) and must
// stay externally adjustable rather than hard-coded.
type CaptureConfig struct {
	// SampleRate is the audio sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count of incoming frames. Default: 1.
	Channels int `yaml:"channels"`

	// FrameSamples is the number of samples per frame. Default: 1024.
	FrameSamples int `yaml:"frame_samples"`

	// EnergyThreshold is the RMS level (in 16-bit PCM units, 0–32767) above
	// which a frame counts as speech. Default: 500.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceLimitMs is the consecutive-silence duration that ends an
	// utterance once speech has started. Default: 1500.
	SilenceLimitMs int `yaml:"silence_limit_ms"`

	// PreRollMs is the duration of audio retained from before the first
	// speech frame so utterance onsets are never clipped. Default: 500.
	PreRollMs int `yaml:"pre_roll_ms"`

	// MaxUtteranceMs caps the total capture duration. Default: 15000.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`

	// Mode selects VAD-triggered or fixed-duration capture. Default: vad.
	Mode CaptureMode `yaml:"mode"`

	// FixedDurationMs is the recording length used in fixed mode.
	// Default: 5000.
	FixedDurationMs int `yaml:"fixed_duration_ms"`
}

// SessionsConfig holds session lifecycle settings.
type SessionsConfig struct {
	// IdleTTLMs is how long a session may sit without activity before the
	// reaper destroys it. Zero disables reaping. Default: 600000 (10 min).
	IdleTTLMs int `yaml:"idle_ttl_ms"`

	// ReapIntervalMs is how often the reaper scans. Default: 60000.
	ReapIntervalMs int `yaml:"reap_interval_ms"`
}

// SchedulerConfig holds response-generation settings.
type SchedulerConfig struct {
	// MaxConcurrent bounds how many generation tasks may run at once across
	// all sessions. Default: 8.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RetryAttempts is the number of tries for each remote call before the
	// task fails. Default: 3.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBaseDelayMs is the initial backoff delay between tries, doubled
	// on each attempt. Default: 250.
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":5001"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Persona.MaxReplyTokens == 0 {
		cfg.Persona.MaxReplyTokens = 150
	}
	if len(cfg.Filler.Phrases) == 0 {
		cfg.Filler.Phrases = append([]string(nil), DefaultFillerPhrases...)
	}

	c := &cfg.Capture
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = 1024
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = 500
	}
	if c.SilenceLimitMs == 0 {
		c.SilenceLimitMs = 1500
	}
	if c.PreRollMs == 0 {
		c.PreRollMs = 500
	}
	if c.MaxUtteranceMs == 0 {
		c.MaxUtteranceMs = 15000
	}
	if c.Mode == "" {
		c.Mode = CaptureVAD
	}
	if c.FixedDurationMs == 0 {
		c.FixedDurationMs = 5000
	}

	if cfg.Sessions.IdleTTLMs == 0 {
		cfg.Sessions.IdleTTLMs = 600_000
	}
	if cfg.Sessions.ReapIntervalMs == 0 {
		cfg.Sessions.ReapIntervalMs = 60_000
	}

	if cfg.Scheduler.MaxConcurrent == 0 {
		cfg.Scheduler.MaxConcurrent = 8
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryBaseDelayMs == 0 {
		cfg.Scheduler.RetryBaseDelayMs = 250
	}
}
