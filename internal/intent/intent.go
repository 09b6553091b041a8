// Package intent implements the exit-intent classifier: a pure heuristic over
// an utterance's text that decides whether the speaker wants to end the
// conversation.
//
// The classification proceeds in two passes over the text's sentences:
//
//  1. Veto pass: any sentence that asks a question (contains a question mark)
//     without expressing gratitude marks the whole text as non-exit. A person
//     who just asked something is not leaving, whatever else they said.
//
//  2. Signal pass: a sentence is exit-signaling if it equals one of the exit
//     phrases (tolerating one edit of transcription noise), or if it is short
//     (at most four words), contains a gratitude phrase, and carries no
//     interrogative lead word and no continuation word.
//
// This is a heuristic, not a language-model judgment. False positives and
// negatives are expected and acceptable.
package intent

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultExitPhrases are the standalone utterances treated as farewells.
var DefaultExitPhrases = []string{
	"goodbye", "bye", "thank you", "thanks", "exit", "quit", "end",
}

// defaultGratitudePhrases mark a short sentence as a polite sign-off.
var defaultGratitudePhrases = []string{"thank you", "thanks", "thank"}

// defaultContinuationWords indicate the speaker wants the conversation to go
// on, overriding the gratitude rule ("thanks for telling me more...").
var defaultContinuationWords = []string{"more", "also", "tell", "about", "another"}

// defaultInterrogativeLeads are sentence openers that signal a question even
// when the transcription dropped the question mark.
var defaultInterrogativeLeads = []string{
	"what", "who", "where", "when", "why", "how",
	"can", "could", "would", "will", "shall", "may",
	"do", "does", "did", "is", "are",
}

// Classifier decides whether a text signals exit intent. It is read-only
// after construction and safe for concurrent use.
type Classifier struct {
	exitPhrases        []string
	gratitudePhrases   []string
	continuationWords  map[string]bool
	interrogativeLeads map[string]bool
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithExitPhrases replaces the default exit phrase set.
func WithExitPhrases(phrases []string) Option {
	return func(c *Classifier) {
		if len(phrases) > 0 {
			c.exitPhrases = normalizeAll(phrases)
		}
	}
}

// New returns a classifier configured with the supplied options.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		exitPhrases:        normalizeAll(DefaultExitPhrases),
		gratitudePhrases:   normalizeAll(defaultGratitudePhrases),
		continuationWords:  wordSet(defaultContinuationWords),
		interrogativeLeads: wordSet(defaultInterrogativeLeads),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsExit reports whether text signals that the speaker wants to end the
// conversation.
func (c *Classifier) IsExit(text string) bool {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return false
	}

	// Veto pass: an ungrateful question anywhere means the speaker still
	// wants something.
	for _, s := range sentences {
		if s.question && !c.containsGratitude(s.norm) {
			return false
		}
	}

	for _, s := range sentences {
		if c.isExitSentence(s) {
			return true
		}
	}
	return false
}

// sentence is one terminal-punctuation-delimited span of the input.
type sentence struct {
	norm     string // lowercased, punctuation trimmed
	words    []string
	question bool
}

// isExitSentence applies the per-sentence rules.
func (c *Classifier) isExitSentence(s sentence) bool {
	if s.norm == "" {
		return false
	}

	// Rule (a): the sentence is an exit phrase, give or take one edit of
	// transcription noise. Very short phrases get no tolerance so that words
	// like "and" cannot drift into "end".
	for _, phrase := range c.exitPhrases {
		if s.norm == phrase {
			return true
		}
		if len(phrase) >= 4 && matchr.DamerauLevenshtein(s.norm, phrase) <= 1 {
			return true
		}
	}

	// Rule (b): a short grateful sign-off with no sign of wanting more.
	if len(s.words) > 4 || s.question {
		return false
	}
	if !c.containsGratitude(s.norm) {
		return false
	}
	if len(s.words) > 0 && c.interrogativeLeads[s.words[0]] {
		return false
	}
	for _, w := range s.words {
		if c.continuationWords[w] {
			return false
		}
	}
	return true
}

func (c *Classifier) containsGratitude(norm string) bool {
	for _, g := range c.gratitudePhrases {
		if strings.Contains(norm, g) {
			return true
		}
	}
	return false
}

// splitSentences breaks text on terminal punctuation, remembering whether
// each sentence was terminated (or interrupted) by a question mark.
func splitSentences(text string) []sentence {
	var out []sentence
	var b strings.Builder
	question := false

	flush := func() {
		raw := strings.TrimSpace(b.String())
		b.Reset()
		if raw == "" {
			question = false
			return
		}
		norm := normalize(raw)
		out = append(out, sentence{
			norm:     norm,
			words:    strings.Fields(norm),
			question: question,
		})
		question = false
	}

	for _, r := range text {
		switch r {
		case '.', '!':
			flush()
		case '?':
			question = true
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// normalize lowercases and strips everything but letters, digits, spaces, and
// apostrophes, collapsing runs of whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func wordSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
