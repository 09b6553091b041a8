package filler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/museworks/velatura/internal/filler"
	"github.com/museworks/velatura/pkg/gateway/mock"
)

var phrases = []string{"Hmm...", "Ah, I see...", "One moment..."}

func TestCache_WarmSynthesizesAll(t *testing.T) {
	t.Parallel()
	m := &mock.Gateway{SynthesizeAudio: []byte("mp3")}
	c := filler.NewCache(m, phrases)

	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if got := len(m.SynthesizeCalls); got != len(phrases) {
		t.Errorf("synthesize calls = %d, want %d", got, len(phrases))
	}
}

func TestCache_RandomCoversAllPhrases(t *testing.T) {
	t.Parallel()
	m := &mock.Gateway{SynthesizeAudio: []byte("mp3")}
	c := filler.NewCache(m, phrases)
	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}

	// With uniform selection every phrase must show up well within 1000 draws.
	seen := make(map[string]bool)
	for i := 0; i < 1000 && len(seen) < len(phrases); i++ {
		e, err := c.Random(context.Background())
		if err != nil {
			t.Fatalf("Random: %v", err)
		}
		if len(e.Audio) == 0 {
			t.Fatal("Random returned empty audio")
		}
		seen[e.Text] = true
	}
	if len(seen) != len(phrases) {
		t.Errorf("selection covered %d phrases, want %d", len(seen), len(phrases))
	}
}

func TestCache_RandomSynthesizesLazilyAfterWarmMiss(t *testing.T) {
	t.Parallel()
	fail := true
	m := &mock.Gateway{}
	m.SynthesizeFunc = func(ctx context.Context, text string) ([]byte, error) {
		if fail {
			return nil, errors.New("tts down")
		}
		return []byte("mp3"), nil
	}
	c := filler.NewCache(m, []string{"Hmm..."})

	// All phrases fail to warm.
	if err := c.Warm(context.Background()); err == nil {
		t.Fatal("Warm should fail when every phrase fails")
	}

	// Upstream recovers; the miss is filled on demand.
	fail = false
	e, err := c.Random(context.Background())
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	if string(e.Audio) != "mp3" {
		t.Errorf("audio = %q, want mp3", e.Audio)
	}

	// Subsequent picks hit the cache, not the synthesizer.
	before := len(m.SynthesizeCalls)
	if _, err := c.Random(context.Background()); err != nil {
		t.Fatalf("Random: %v", err)
	}
	if len(m.SynthesizeCalls) != before {
		t.Error("cached phrase was re-synthesized")
	}
}

func TestCache_EmptyPhraseSet(t *testing.T) {
	t.Parallel()
	c := filler.NewCache(&mock.Gateway{}, nil)
	if _, err := c.Random(context.Background()); err == nil {
		t.Fatal("Random on empty set should fail")
	}
}
