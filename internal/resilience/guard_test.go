package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/museworks/velatura/internal/resilience"
	"github.com/museworks/velatura/pkg/gateway/mock"
)

func TestGuard_RetriesTransientFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	m := &mock.Gateway{}
	m.TranscribeFunc = func(ctx context.Context, wav []byte) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "hola", nil
	}

	guard := resilience.NewGuard(m.Bundle(),
		resilience.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond},
		resilience.BreakerConfig{TripAfter: 10})

	text, err := guard.Transcribe(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hola" {
		t.Errorf("text = %q, want hola", text)
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2", calls)
	}
}

func TestGuard_BreakerShortCircuits(t *testing.T) {
	t.Parallel()
	m := &mock.Gateway{SynthesizeErr: errors.New("down")}

	guard := resilience.NewGuard(m.Bundle(),
		resilience.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond},
		resilience.BreakerConfig{TripAfter: 2, Cooldown: time.Hour})

	ctx := context.Background()
	guard.Synthesize(ctx, "uno")
	guard.Synthesize(ctx, "dos")

	before := len(m.SynthesizeCalls)
	_, err := guard.Synthesize(ctx, "tres")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if len(m.SynthesizeCalls) != before {
		t.Error("open breaker still reached the upstream")
	}
}

func TestGuard_BreakersAreIndependent(t *testing.T) {
	t.Parallel()
	m := &mock.Gateway{
		CompleteErr:    errors.New("llm down"),
		TranscribeText: "still works",
	}

	guard := resilience.NewGuard(m.Bundle(),
		resilience.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond},
		resilience.BreakerConfig{TripAfter: 1, Cooldown: time.Hour})

	ctx := context.Background()
	guard.Complete(ctx, "prompt", nil, 150)

	// The complete breaker is open; transcribe must be unaffected.
	text, err := guard.Transcribe(ctx, []byte("wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "still works" {
		t.Errorf("text = %q, want still works", text)
	}
}
