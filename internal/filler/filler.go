// Package filler holds pre-synthesized acknowledgement phrases played while a
// real reply is being generated, so the persona never falls dead silent.
//
// The phrase set is fixed at construction, synthesized eagerly on Warm, and
// never evicted. A phrase whose synthesis failed during warming is retried
// lazily the next time it is picked.
package filler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/museworks/velatura/pkg/gateway"
)

// Entry is one acknowledgement phrase with its synthesized audio.
type Entry struct {
	Text  string
	Audio []byte
}

// Cache maps each phrase of a fixed set to synthesized audio. All methods are
// safe for concurrent use.
type Cache struct {
	synth   gateway.Synthesizer
	phrases []string

	mu    sync.Mutex
	audio map[string][]byte
}

// NewCache creates an unwarmed cache over the given phrase set.
func NewCache(synth gateway.Synthesizer, phrases []string) *Cache {
	return &Cache{
		synth:   synth,
		phrases: append([]string(nil), phrases...),
		audio:   make(map[string][]byte, len(phrases)),
	}
}

// Warm synthesizes every phrase in the set. Individual failures are logged
// and left for lazy synthesis on first use; Warm only fails when the whole
// set failed, which usually means credentials or connectivity are broken.
func (c *Cache) Warm(ctx context.Context) error {
	var ok int
	for _, phrase := range c.phrases {
		audio, err := c.synth.Synthesize(ctx, phrase)
		if err != nil {
			slog.Warn("filler: warm synthesis failed", "phrase", phrase, "err", err)
			continue
		}
		c.mu.Lock()
		c.audio[phrase] = audio
		c.mu.Unlock()
		ok++
	}
	if ok == 0 && len(c.phrases) > 0 {
		return fmt.Errorf("filler: warming failed for all %d phrases", len(c.phrases))
	}
	slog.Info("filler: cache warmed", "phrases", ok, "total", len(c.phrases))
	return nil
}

// Random returns a uniformly chosen phrase with its audio, synthesizing on
// the spot if the phrase missed warming.
func (c *Cache) Random(ctx context.Context) (Entry, error) {
	if len(c.phrases) == 0 {
		return Entry{}, fmt.Errorf("filler: phrase set is empty")
	}

	phrase := c.phrases[rand.IntN(len(c.phrases))]

	c.mu.Lock()
	audio, ok := c.audio[phrase]
	c.mu.Unlock()

	if !ok {
		var err error
		audio, err = c.synth.Synthesize(ctx, phrase)
		if err != nil {
			return Entry{}, fmt.Errorf("filler: synthesize %q: %w", phrase, err)
		}
		c.mu.Lock()
		c.audio[phrase] = audio
		c.mu.Unlock()
	}
	return Entry{Text: phrase, Audio: audio}, nil
}

// Len returns the size of the phrase set.
func (c *Cache) Len() int {
	return len(c.phrases)
}
