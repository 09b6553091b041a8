package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/museworks/velatura/internal/app"
	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/gateway/mock"
)

const testYAML = `
persona:
  name: Frida Kahlo
  system_prompt: You are Frida Kahlo. Keep replies short.
  welcome_text: Hola, welcome to my studio.
  farewell_text: Adiós, mi querido amigo.
providers:
  completer:
    api_key: test-key
  transcriber:
    api_key: test-key
  synthesizer:
    api_key: test-key
`

func loadConfig(t *testing.T, yml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBuildGateway(t *testing.T) {
	cfg := loadConfig(t, testYAML)

	gw, err := app.BuildGateway(cfg)
	if err != nil {
		t.Fatalf("BuildGateway: %v", err)
	}
	if gw.Completer == nil || gw.Transcriber == nil || gw.Synthesizer == nil {
		t.Errorf("gateway has nil capability: %+v", gw)
	}
}

func TestBuildGateway_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := loadConfig(t, testYAML)
	cfg.Providers.Completer.APIKey = ""

	_, err := app.BuildGateway(cfg)
	if !errors.Is(err, gateway.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestBuildGateway_WhisperLocalTranscriber(t *testing.T) {
	cfg := loadConfig(t, testYAML)
	cfg.Providers.Transcriber = config.ProviderEntry{
		Name:    "whisperlocal",
		BaseURL: "http://localhost:8080",
	}

	gw, err := app.BuildGateway(cfg)
	if err != nil {
		t.Fatalf("BuildGateway: %v", err)
	}
	if gw.Transcriber == nil {
		t.Error("transcriber is nil")
	}
}

// TestApp_Lifecycle wires the full application once per process: the metrics
// provider registers a Prometheus collector globally, so a second New in the
// same test binary would collide.
func TestApp_Lifecycle(t *testing.T) {
	cfg := loadConfig(t, testYAML)
	ctx := context.Background()

	g := &mock.Gateway{SynthesizeAudio: []byte("mp3")}
	a, err := app.New(ctx, cfg, app.WithGateway(g.Bundle()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(ctx)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want %d", rec.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodPost, "/start_session", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("POST /start_session = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	if len(g.SynthesizeCalls) == 0 {
		t.Error("expected the welcome line to be synthesized")
	}
}
