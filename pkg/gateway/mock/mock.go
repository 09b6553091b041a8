// Package mock provides test doubles for the gateway interfaces.
//
// Use Gateway in unit tests to feed controlled transcriptions, audio bytes,
// and persona replies without a live backend, and to verify what the scheduler
// and handlers send. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	g := &mock.Gateway{CompleteText: "Hola, mi amigo."}
//	sched := respond.NewScheduler(store, g.Bundle(), cfg)
package mock

import (
	"context"
	"sync"

	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// SystemPrompt is the persona preamble passed to Complete.
	SystemPrompt string
	// Turns is the conversation passed to Complete.
	Turns []types.Turn
	// MaxTokens is the reply budget passed to Complete.
	MaxTokens int
}

// Gateway is a mock implementation of all three gateway capabilities.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject failures. Func fields, when non-nil, take
// precedence over the static response fields.
type Gateway struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeText is returned by Transcribe.
	TranscribeText string
	// TranscribeErr, if non-nil, is returned by Transcribe.
	TranscribeErr error
	// TranscribeFunc, if non-nil, handles Transcribe calls entirely.
	TranscribeFunc func(ctx context.Context, wav []byte) (string, error)

	// SynthesizeAudio is returned by Synthesize.
	SynthesizeAudio []byte
	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error
	// SynthesizeFunc, if non-nil, handles Synthesize calls entirely.
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	// CompleteText is returned by Complete.
	CompleteText string
	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error
	// CompleteFunc, if non-nil, handles Complete calls entirely.
	CompleteFunc func(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error)

	// --- Recorded calls ---

	// TranscribeCalls holds the WAV payloads passed to Transcribe.
	TranscribeCalls [][]byte
	// SynthesizeCalls holds the texts passed to Synthesize.
	SynthesizeCalls []string
	// CompleteCalls records every Complete invocation in order.
	CompleteCalls []CompleteCall
}

// Bundle wraps the mock in a gateway.Gateway using it for every capability.
func (g *Gateway) Bundle() *gateway.Gateway {
	return &gateway.Gateway{Transcriber: g, Synthesizer: g, Completer: g}
}

// Transcribe implements gateway.Transcriber.
func (g *Gateway) Transcribe(ctx context.Context, wav []byte) (string, error) {
	g.mu.Lock()
	g.TranscribeCalls = append(g.TranscribeCalls, wav)
	fn := g.TranscribeFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, wav)
	}
	if g.TranscribeErr != nil {
		return "", g.TranscribeErr
	}
	return g.TranscribeText, nil
}

// Synthesize implements gateway.Synthesizer.
func (g *Gateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	g.mu.Lock()
	g.SynthesizeCalls = append(g.SynthesizeCalls, text)
	fn := g.SynthesizeFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if g.SynthesizeErr != nil {
		return nil, g.SynthesizeErr
	}
	return g.SynthesizeAudio, nil
}

// Complete implements gateway.Completer.
func (g *Gateway) Complete(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error) {
	g.mu.Lock()
	g.CompleteCalls = append(g.CompleteCalls, CompleteCall{
		SystemPrompt: systemPrompt,
		Turns:        append([]types.Turn(nil), turns...),
		MaxTokens:    maxTokens,
	})
	fn := g.CompleteFunc
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, turns, maxTokens)
	}
	if g.CompleteErr != nil {
		return "", g.CompleteErr
	}
	return g.CompleteText, nil
}
