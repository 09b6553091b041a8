package resilience

import (
	"context"

	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

// Guard hardens a [gateway.Gateway]: every capability call runs inside a
// per-capability circuit breaker with bounded retries. The wrapped gateway is
// a drop-in replacement for the raw one.
type Guard struct {
	inner *gateway.Gateway
	retry RetryConfig

	transcribeCB *CircuitBreaker
	completeCB   *CircuitBreaker
	synthesizeCB *CircuitBreaker
}

// Compile-time interface assertions.
var (
	_ gateway.Transcriber = (*Guard)(nil)
	_ gateway.Completer   = (*Guard)(nil)
	_ gateway.Synthesizer = (*Guard)(nil)
)

// NewGuard wraps g with per-capability breakers and the given retry policy.
func NewGuard(g *gateway.Gateway, retry RetryConfig, breaker BreakerConfig) *Guard {
	mk := func(name string) *CircuitBreaker {
		c := breaker
		c.Name = name
		return NewCircuitBreaker(c)
	}
	return &Guard{
		inner:        g,
		retry:        retry.withDefaults(),
		transcribeCB: mk("transcribe"),
		completeCB:   mk("complete"),
		synthesizeCB: mk("synthesize"),
	}
}

// Gateway returns a gateway bundle backed by the guard for every capability.
func (gd *Guard) Gateway() *gateway.Gateway {
	return &gateway.Gateway{Transcriber: gd, Completer: gd, Synthesizer: gd}
}

// Transcribe implements gateway.Transcriber with retry and breaker protection.
func (gd *Guard) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var text string
	err := Retry(ctx, gd.retry, func() error {
		return gd.transcribeCB.Execute(func() error {
			var err error
			text, err = gd.inner.Transcriber.Transcribe(ctx, wav)
			return err
		})
	})
	return text, err
}

// Complete implements gateway.Completer with retry and breaker protection.
func (gd *Guard) Complete(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error) {
	var reply string
	err := Retry(ctx, gd.retry, func() error {
		return gd.completeCB.Execute(func() error {
			var err error
			reply, err = gd.inner.Completer.Complete(ctx, systemPrompt, turns, maxTokens)
			return err
		})
	})
	return reply, err
}

// Synthesize implements gateway.Synthesizer with retry and breaker protection.
func (gd *Guard) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := Retry(ctx, gd.retry, func() error {
		return gd.synthesizeCB.Execute(func() error {
			var err error
			audio, err = gd.inner.Synthesizer.Synthesize(ctx, text)
			return err
		})
	})
	return audio, err
}
