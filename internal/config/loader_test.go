package config_test

import (
	"strings"
	"testing"

	"github.com/museworks/velatura/internal/config"
)

const minimalYAML = `
persona:
  name: Frida Kahlo
  system_prompt: You are Frida Kahlo, the Mexican painter.
`

func TestLoadFromReader_MinimalIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":5001" {
		t.Errorf("listen_addr = %q, want default :5001", cfg.Server.ListenAddr)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want default 16000", cfg.Capture.SampleRate)
	}
	if cfg.Capture.Mode != config.CaptureVAD {
		t.Errorf("capture mode = %q, want vad", cfg.Capture.Mode)
	}
	if cfg.Persona.MaxReplyTokens != 150 {
		t.Errorf("max_reply_tokens = %d, want default 150", cfg.Persona.MaxReplyTokens)
	}
	if len(cfg.Filler.Phrases) == 0 {
		t.Error("filler phrases should default to the built-in set")
	}
}

func TestValidate_MissingPersona(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":5001"
`))
	if err == nil {
		t.Fatal("expected error for missing persona, got nil")
	}
	if !strings.Contains(err.Error(), "persona.name") {
		t.Errorf("error should mention persona.name, got: %v", err)
	}
	if !strings.Contains(err.Error(), "persona.system_prompt") {
		t.Errorf("error should mention persona.system_prompt, got: %v", err)
	}
}

func TestValidate_UnknownProviderName(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
providers:
  completer:
    name: bard
`))
	if err == nil {
		t.Fatal("expected error for unknown completer backend, got nil")
	}
	if !strings.Contains(err.Error(), "bard") {
		t.Errorf("error should name the bad backend, got: %v", err)
	}
}

func TestValidate_AnyllmRequiresProvider(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
providers:
  completer:
    name: anyllm
    model: llama3.1
`))
	if err == nil {
		t.Fatal("expected error for anyllm without provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.completer.provider") {
		t.Errorf("error should mention providers.completer.provider, got: %v", err)
	}
}

func TestValidate_WhisperlocalRequiresBaseURL(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
providers:
  transcriber:
    name: whisperlocal
`))
	if err == nil {
		t.Fatal("expected error for whisperlocal without base_url, got nil")
	}
	if !strings.Contains(err.Error(), "base_url") {
		t.Errorf("error should mention base_url, got: %v", err)
	}
}

func TestValidate_CaptureTunables(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
capture:
  energy_threshold: 40000
  silence_limit_ms: 20000
  max_utterance_ms: 15000
`))
	if err == nil {
		t.Fatal("expected error for out-of-range capture tunables, got nil")
	}
	if !strings.Contains(err.Error(), "energy_threshold") {
		t.Errorf("error should mention energy_threshold, got: %v", err)
	}
	if !strings.Contains(err.Error(), "max_utterance_ms") {
		t.Errorf("error should mention max_utterance_ms, got: %v", err)
	}
}

func TestValidate_BadCaptureMode(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
capture:
  mode: continuous
`))
	if err == nil {
		t.Fatal("expected error for bad capture mode, got nil")
	}
	if !strings.Contains(err.Error(), "capture.mode") {
		t.Errorf("error should mention capture.mode, got: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
capture:
  treshold: 300
`))
	if err == nil {
		t.Fatal("expected error for unknown field (typo), got nil")
	}
}
