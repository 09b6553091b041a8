package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per capability.
// Used by [Validate] to reject unrecognised backend names.
var ValidProviderNames = map[string][]string{
	"completer":   {"openai", "anyllm"},
	"transcriber": {"openai", "whisperlocal"},
	"synthesizer": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateProviderName("completer", cfg.Providers.Completer.Name)...)
	errs = append(errs, validateProviderName("transcriber", cfg.Providers.Transcriber.Name)...)
	errs = append(errs, validateProviderName("synthesizer", cfg.Providers.Synthesizer.Name)...)

	if cfg.Providers.Completer.Name == "anyllm" && cfg.Providers.Completer.Provider == "" {
		errs = append(errs, errors.New("providers.completer.provider is required when name is anyllm"))
	}
	if cfg.Providers.Transcriber.Name == "whisperlocal" && cfg.Providers.Transcriber.BaseURL == "" {
		errs = append(errs, errors.New("providers.transcriber.base_url is required when name is whisperlocal"))
	}

	if cfg.Persona.Name == "" {
		errs = append(errs, errors.New("persona.name is required"))
	}
	if cfg.Persona.SystemPrompt == "" {
		errs = append(errs, errors.New("persona.system_prompt is required"))
	}
	if cfg.Persona.MaxReplyTokens < 0 {
		errs = append(errs, fmt.Errorf("persona.max_reply_tokens %d must not be negative", cfg.Persona.MaxReplyTokens))
	}

	c := cfg.Capture
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.SampleRate))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be 1 or 2", c.Channels))
	}
	if c.FrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("capture.frame_samples %d must be positive", c.FrameSamples))
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 32767 {
		errs = append(errs, fmt.Errorf("capture.energy_threshold %.1f is out of range [0, 32767]", c.EnergyThreshold))
	}
	if c.SilenceLimitMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.silence_limit_ms %d must be positive", c.SilenceLimitMs))
	}
	if c.MaxUtteranceMs <= c.SilenceLimitMs {
		errs = append(errs, fmt.Errorf("capture.max_utterance_ms %d must exceed silence_limit_ms %d", c.MaxUtteranceMs, c.SilenceLimitMs))
	}
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("capture.mode %q is invalid; valid values: vad, fixed", c.Mode))
	}

	if cfg.Scheduler.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_concurrent %d must be at least 1", cfg.Scheduler.MaxConcurrent))
	}

	return errors.Join(errs...)
}

// validateProviderName returns an error slice if name is non-empty and not a
// known backend for the given capability. An empty name selects the default
// backend and is always valid.
func validateProviderName(kind, name string) []error {
	if name == "" {
		return nil
	}
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return nil
	}
	return []error{fmt.Errorf("providers.%s.name %q is unknown; valid values: %v", kind, name, known)}
}
