// Package app wires all velatura subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// metrics provider, the capability gateway with its resilience guard, the
// session store, the response scheduler, the filler cache, and the HTTP
// server. Run executes the server loop and Shutdown tears everything down
// in order.
//
// For testing, inject a mock gateway via WithGateway. When the option is
// not provided, New builds real backends from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/internal/filler"
	"github.com/museworks/velatura/internal/observe"
	"github.com/museworks/velatura/internal/resilience"
	"github.com/museworks/velatura/internal/respond"
	"github.com/museworks/velatura/internal/server"
	"github.com/museworks/velatura/internal/session"
	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/gateway/anyllm"
	"github.com/museworks/velatura/pkg/gateway/openai"
	"github.com/museworks/velatura/pkg/gateway/whisperlocal"
)

// App owns all subsystem lifetimes for the velatura voice server.
type App struct {
	cfg        *config.Config
	gw         *gateway.Gateway
	metrics    *observe.Metrics
	store      *session.Store
	sched      *respond.Scheduler
	fillers    *filler.Cache
	srv        *server.Server
	captureCfg func() config.CaptureConfig

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles
// or live-reloading config.
type Option func(*App)

// WithGateway injects a pre-built gateway instead of constructing backends
// from config. The guard and instrumentation are still applied on top.
func WithGateway(gw *gateway.Gateway) Option {
	return func(a *App) { a.gw = gw }
}

// WithCaptureConfig supplies a live view of the capture tunables, typically
// backed by a [config.Watcher] so threshold changes apply without restart.
func WithCaptureConfig(fn func() config.CaptureConfig) Option {
	return func(a *App) { a.captureCfg = fn }
}

// New creates an App by wiring all subsystems together. It performs all
// initialisation synchronously except filler warming, which happens at the
// start of Run so a slow synthesis backend does not block startup
// diagnostics.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.captureCfg == nil {
		a.captureCfg = func() config.CaptureConfig { return cfg.Capture }
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "velatura"})
	if err != nil {
		return nil, fmt.Errorf("app: init metrics provider: %w", err)
	}
	a.closers = append(a.closers, shutdownMetrics)
	a.metrics = observe.DefaultMetrics()

	if a.gw == nil {
		gw, err := BuildGateway(cfg)
		if err != nil {
			return nil, fmt.Errorf("app: build gateway: %w", err)
		}
		a.gw = gw
	}

	// Instrument, then harden: metrics see every attempt, the scheduler
	// sees only the final outcome.
	guarded := resilience.NewGuard(
		observe.InstrumentGateway(a.gw, a.metrics),
		resilience.RetryConfig{
			Attempts:  cfg.Scheduler.RetryAttempts,
			BaseDelay: time.Duration(cfg.Scheduler.RetryBaseDelayMs) * time.Millisecond,
		},
		resilience.BreakerConfig{},
	).Gateway()

	a.store = session.NewStore()
	a.sched = respond.NewScheduler(a.store, guarded, cfg.Persona, cfg.Scheduler.MaxConcurrent,
		respond.WithPublishHook(func(sessionID string, failed bool) {
			a.metrics.GenerationsInFlight.Add(context.Background(), -1)
			a.metrics.RecordReply(context.Background(), failed)
		}),
	)
	a.closers = append(a.closers, func(context.Context) error {
		a.sched.Close()
		return nil
	})

	// Creation counts in the store, not the start_session handler, so
	// sessions recreated implicitly by an append balance the destroy-side
	// decrement.
	a.store.SetCreateHook(func(sessionID string) {
		a.metrics.ActiveSessions.Add(context.Background(), 1)
	})
	a.store.SetDestroyHook(func(sessionID string) {
		a.sched.Drop(sessionID)
		a.metrics.ActiveSessions.Add(context.Background(), -1)
	})

	stopReaper := a.store.StartReaper(
		time.Duration(cfg.Sessions.IdleTTLMs)*time.Millisecond,
		time.Duration(cfg.Sessions.ReapIntervalMs)*time.Millisecond,
	)
	a.closers = append(a.closers, func(context.Context) error {
		stopReaper()
		return nil
	})

	a.fillers = filler.NewCache(guarded.Synthesizer, cfg.Filler.Phrases)

	a.srv = server.New(cfg, a.store, a.sched, a.fillers, guarded,
		server.WithMetrics(a.metrics),
		server.WithCaptureConfig(a.captureCfg),
	)

	return a, nil
}

// Handler exposes the HTTP handler for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run warms the filler cache and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	warmCtx, cancel := context.WithTimeout(ctx, time.Minute)
	if err := a.fillers.Warm(warmCtx); err != nil {
		// Degraded but serviceable; phrases synthesize lazily on demand.
		slog.Warn("app: filler cache warming failed", "err", err)
	}
	cancel()

	return a.srv.Run(ctx)
}

// Shutdown tears subsystems down in reverse construction order. It is safe
// to call more than once.
func (a *App) Shutdown(ctx context.Context) {
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("app: shutdown step failed", "err", err)
			}
		}
	})
}

// BuildGateway constructs the three remote capabilities from config.
// A missing credential fails here, at startup, not on the first request.
func BuildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	gw := &gateway.Gateway{}

	switch entry := cfg.Providers.Completer; entry.Name {
	case "", "openai":
		client, err := newOpenAIClient(entry)
		if err != nil {
			return nil, err
		}
		gw.Completer = client
	case "anyllm":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		c, err := anyllm.New(entry.Provider, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		gw.Completer = c
	}

	switch entry := cfg.Providers.Transcriber; entry.Name {
	case "", "openai":
		client, err := newOpenAIClient(entry)
		if err != nil {
			return nil, err
		}
		gw.Transcriber = client
	case "whisperlocal":
		t, err := whisperlocal.New(entry.BaseURL)
		if err != nil {
			return nil, err
		}
		gw.Transcriber = t
	}

	// Synthesis is OpenAI-only for now.
	client, err := newOpenAIClient(cfg.Providers.Synthesizer)
	if err != nil {
		return nil, err
	}
	gw.Synthesizer = client

	if err := gw.Validate(); err != nil {
		return nil, err
	}
	return gw, nil
}

// newOpenAIClient builds an OpenAI-backed client for one capability entry.
// The API key comes from config or the OPENAI_API_KEY environment variable.
func newOpenAIClient(entry config.ProviderEntry) (*openai.Client, error) {
	apiKey := entry.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if entry.Model != "" {
		opts = append(opts,
			openai.WithChatModel(entry.Model),
			openai.WithTranscribeModel(entry.Model),
			openai.WithSpeechModel(entry.Model),
		)
	}
	if entry.Voice != "" {
		opts = append(opts, openai.WithVoice(entry.Voice))
	}
	return openai.New(apiKey, opts...)
}

// NewLogger creates a text slog logger at the configured level.
func NewLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
