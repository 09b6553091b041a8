// Package capture implements the voice-activity-triggered utterance capture
// engine. It watches a frame stream for speech energy, records until sustained
// silence or a hard duration cap, and returns a single utterance with the
// moments just before speech onset included.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/pkg/audio"
	"github.com/museworks/velatura/pkg/types"
)

// ErrNoSpeech indicates the frame source ended before any frame crossed the
// energy threshold. It is an expected outcome, not a device failure.
var ErrNoSpeech = errors.New("capture: no speech detected")

// FrameSource supplies fixed-size PCM frames to the engine. ReadFrame blocks
// until a frame is available, returns io.EOF when the stream ends, and any
// other error is treated as a device failure that aborts the capture.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// FrameSourceFunc adapts a function to the FrameSource interface.
type FrameSourceFunc func(ctx context.Context) ([]byte, error)

// ReadFrame implements FrameSource.
func (f FrameSourceFunc) ReadFrame(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// state tracks the engine's position in the capture lifecycle.
type state int

const (
	stateWaiting state = iota
	stateRecording
)

// Engine captures single utterances from a frame stream. It is stateless
// between calls; one Engine may serve any number of sequential captures, and
// distinct goroutines may call Capture concurrently with distinct sources.
type Engine struct {
	cfg config.CaptureConfig
	log *slog.Logger

	// derived frame counts
	frameBytes    int
	silenceFrames int
	preRollFrames int
	maxFrames     int
	fixedFrames   int
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger sets the logger used for per-capture diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates a capture engine from validated config. Millisecond tunables are
// converted to whole frame counts, rounding up so the configured durations are
// never undershot.
func New(cfg config.CaptureConfig, opts ...Option) *Engine {
	frameMs := cfg.FrameSamples * 1000 / cfg.SampleRate
	if frameMs <= 0 {
		frameMs = 1
	}
	e := &Engine{
		cfg:           cfg,
		log:           slog.Default(),
		frameBytes:    cfg.FrameSamples * cfg.Channels * 2,
		silenceFrames: ceilDiv(cfg.SilenceLimitMs, frameMs),
		preRollFrames: ceilDiv(cfg.PreRollMs, frameMs),
		maxFrames:     ceilDiv(cfg.MaxUtteranceMs, frameMs),
		fixedFrames:   ceilDiv(cfg.FixedDurationMs, frameMs),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Capture reads frames from src until a complete utterance is collected and
// returns it. In VAD mode it runs the waiting/recording state machine; in
// fixed mode it records for the configured duration regardless of content.
//
// Returns [ErrNoSpeech] if the source ends without any speech or the maximum
// utterance duration elapses before any frame crosses the threshold, or the
// device error if src fails mid-stream.
func (e *Engine) Capture(ctx context.Context, src FrameSource) (*types.Utterance, error) {
	if e.cfg.Mode == config.CaptureFixed {
		return e.captureFixed(ctx, src)
	}
	return e.captureVAD(ctx, src)
}

// captureVAD implements energy-triggered capture. Frames arriving before
// speech onset are retained in a bounded pre-roll ring so the start of the
// utterance is never clipped. Malformed frames contribute zero energy but are
// still recorded, so a glitching source cannot end an utterance early.
func (e *Engine) captureVAD(ctx context.Context, src FrameSource) (*types.Utterance, error) {
	ring := newFrameRing(e.preRollFrames)
	var frames [][]byte
	st := stateWaiting
	silent := 0
	processed := 0

	for {
		frame, err := src.ReadFrame(ctx)
		switch {
		case errors.Is(err, io.EOF):
			if st == stateWaiting {
				return nil, ErrNoSpeech
			}
			// Source ended mid-utterance; return what we have.
			return e.utterance(frames), nil
		case err != nil:
			return nil, fmt.Errorf("capture: read frame: %w", err)
		}
		processed++

		speech := e.frameEnergy(frame) > e.cfg.EnergyThreshold

		switch st {
		case stateWaiting:
			if !speech {
				ring.push(frame)
				// A live source streaming only silence must not hold the
				// capture open past the utterance cap.
				if processed >= e.maxFrames {
					e.log.Debug("capture: max duration reached without speech", "frames", processed)
					return nil, ErrNoSpeech
				}
				continue
			}
			frames = append(frames, ring.drain()...)
			frames = append(frames, frame)
			st = stateRecording
			silent = 0
			e.log.Debug("capture: speech onset", "pre_roll_frames", len(frames)-1)

		case stateRecording:
			frames = append(frames, frame)
			if speech {
				silent = 0
			} else {
				silent++
				if silent >= e.silenceFrames {
					e.log.Debug("capture: silence limit reached", "frames", len(frames))
					return e.utterance(frames), nil
				}
			}
			if len(frames) >= e.maxFrames {
				e.log.Debug("capture: max utterance duration reached", "frames", len(frames))
				return e.utterance(frames), nil
			}
		}
	}
}

// captureFixed records for the configured fixed duration. The source ending
// early is fine; an entirely empty recording is reported as no speech.
func (e *Engine) captureFixed(ctx context.Context, src FrameSource) (*types.Utterance, error) {
	var frames [][]byte
	for len(frames) < e.fixedFrames {
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("capture: read frame: %w", err)
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, ErrNoSpeech
	}
	return e.utterance(frames), nil
}

// frameEnergy returns the RMS energy of a frame. Frames of unexpected size
// (device hiccups, truncated reads) count as zero energy rather than being
// able to trigger or sustain recording.
func (e *Engine) frameEnergy(frame []byte) float64 {
	if len(frame) != e.frameBytes {
		return 0
	}
	return audio.RMS(frame)
}

// utterance joins recorded frames into a single Utterance.
func (e *Engine) utterance(frames [][]byte) *types.Utterance {
	return &types.Utterance{
		PCM:        bytes.Join(frames, nil),
		SampleRate: e.cfg.SampleRate,
		Channels:   e.cfg.Channels,
	}
}

// frameRing is a bounded FIFO of recent frames used for pre-roll retention.
// Pushing onto a full ring evicts the oldest frame.
type frameRing struct {
	frames [][]byte
	cap    int
}

func newFrameRing(capacity int) *frameRing {
	return &frameRing{cap: capacity}
}

func (r *frameRing) push(frame []byte) {
	if r.cap == 0 {
		return
	}
	if len(r.frames) == r.cap {
		copy(r.frames, r.frames[1:])
		r.frames = r.frames[:r.cap-1]
	}
	r.frames = append(r.frames, frame)
}

// drain returns the buffered frames in arrival order and empties the ring.
func (r *frameRing) drain() [][]byte {
	out := r.frames
	r.frames = nil
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
