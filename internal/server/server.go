// Package server exposes the persona conversation protocol over HTTP: session
// lifecycle, transcription upload, filler retrieval, the asynchronous
// get/check response protocol, a WebSocket capture endpoint, and the
// operational probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/museworks/velatura/internal/capture"
	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/internal/filler"
	"github.com/museworks/velatura/internal/health"
	"github.com/museworks/velatura/internal/observe"
	"github.com/museworks/velatura/internal/respond"
	"github.com/museworks/velatura/internal/session"
	"github.com/museworks/velatura/pkg/gateway"
)

// Server wires the HTTP surface to the store, scheduler, filler cache, and
// gateway. Construct with [New] and mount [Server.Handler].
type Server struct {
	cfg     *config.Config
	store   *session.Store
	sched   *respond.Scheduler
	fillers *filler.Cache
	gw      *gateway.Gateway
	metrics *observe.Metrics
	healthz *health.Handler

	// captureCfg yields the current capture tunables so the WebSocket capture
	// endpoint picks up hot-reloaded thresholds.
	captureCfg func() config.CaptureConfig
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCaptureConfig sets the provider for current capture tunables,
// typically Watcher.Current. Defaults to the static startup config.
func WithCaptureConfig(fn func() config.CaptureConfig) Option {
	return func(s *Server) {
		if fn != nil {
			s.captureCfg = fn
		}
	}
}

// New creates the server. The session store's destroy hook must already
// cascade to the scheduler; the server only adds HTTP semantics on top.
func New(cfg *config.Config, store *session.Store, sched *respond.Scheduler, fillers *filler.Cache, gw *gateway.Gateway, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		sched:      sched,
		fillers:    fillers,
		gw:         gw,
		healthz:    health.New(health.GatewayCheck(gw), health.FillerCheck(fillers)),
		captureCfg: func() config.CaptureConfig { return cfg.Capture },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully assembled handler: routes wrapped in recovery,
// CORS, and request metrics/logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start_session", s.handleStartSession)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /get_filler", s.handleGetFiller)
	mux.HandleFunc("POST /get_response", s.handleGetResponse)
	mux.HandleFunc("POST /check_response", s.handleCheckResponse)
	mux.HandleFunc("POST /end_session", s.handleEndSession)
	mux.HandleFunc("GET /get_audio", s.handleGetAudio)
	mux.HandleFunc("GET /capture", s.handleCapture)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.healthz.Register(mux)

	var h http.Handler = mux
	h = observe.Middleware(s.metrics)(h)
	h = corsMiddleware(s.cfg.Server.CORSAllowedOrigins, h)
	h = recoverMiddleware(h)
	return h
}

// Run serves until ctx is cancelled, then drains with a shutdown grace
// period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server: listening", "addr", srv.Addr, "persona", s.cfg.Persona.Name)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// errorBody is the structured payload for all user-visible failures.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line has already been sent at that point.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encode response", "err", err)
	}
}

// writeError sends a structured error payload with a non-200 status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("server: decode request: %w", err)
	}
	return nil
}

// recoverMiddleware keeps a panicking handler from taking down the process.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				slog.Error("server: handler panic", "panic", v, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// noSpeechMessage is the client-visible notice for captures without speech.
const noSpeechMessage = "no speech detected"

// isNoSpeech distinguishes the valid no-speech outcome from real failures.
func isNoSpeech(err error) bool {
	return errors.Is(err, capture.ErrNoSpeech)
}
