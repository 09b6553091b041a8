// Package types defines the shared types used across all velatura packages.
//
// These types form the lingua franca between the gateway backends, the capture
// engine, the session store, and the response scheduler. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn spoken by the human participant.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the persona.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a conversation history. Turns are immutable once
// appended to a session; their order is conversation order and must be
// preserved verbatim when replayed to the language model.
type Turn struct {
	// Role is the author of this turn.
	Role Role

	// Content is the turn's text.
	Content string
}

// Utterance is one contiguous span of captured audio judged to contain speech.
type Utterance struct {
	// PCM is raw little-endian signed 16-bit audio data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback length of the utterance, derived from the
// sample rate and channel count. Returns zero for a malformed utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 || u.Channels <= 0 {
		return 0
	}
	samples := len(u.PCM) / 2 / u.Channels
	return time.Duration(samples) * time.Second / time.Duration(u.SampleRate)
}

// WordTiming places a single word of a spoken reply on a timeline. Timings are
// estimated from word length, not from real phoneme alignment — downstream
// lip-sync consumers should treat them as an approximation.
type WordTiming struct {
	// Word is the text of the word, punctuation included.
	Word string `json:"word"`

	// Start is the estimated onset in seconds from the start of the audio.
	Start float64 `json:"start_time"`

	// End is the estimated offset in seconds from the start of the audio.
	End float64 `json:"end_time"`
}
