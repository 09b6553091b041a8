// Package gateway defines the interfaces for the remote AI capabilities that
// velatura consumes: speech transcription, speech synthesis, and language-model
// completion.
//
// Each capability is a separate single-method interface so that deployments can
// mix backends — for example OpenAI for synthesis and completion with a local
// whisper.cpp server for transcription. The [Gateway] struct bundles one
// implementation of each and is what the rest of the application receives.
//
// All calls are latent, fallible remote I/O. Implementations must be safe for
// concurrent use and must propagate context cancellation promptly. Retry and
// circuit-breaking policy is applied by the caller (internal/resilience), not
// by the backends themselves.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/museworks/velatura/pkg/types"
)

// ErrMissingCredentials is returned by backend constructors when no API key or
// endpoint is available. Surfacing it at startup gives operators a clear
// diagnostic instead of a failing first request.
var ErrMissingCredentials = errors.New("gateway: missing credentials")

// Transcriber converts a complete spoken utterance into text.
type Transcriber interface {
	// Transcribe submits WAV-encoded audio and returns the recognised text.
	// An utterance containing no recognisable speech yields an empty string,
	// not an error. Returns a [*RemoteError] on provider failure.
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	// Synthesize returns encoded audio (typically MP3) speaking the given
	// text in the configured persona voice. Returns a [*RemoteError] on
	// provider failure.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Completer produces the persona's next reply from a conversation.
type Completer interface {
	// Complete sends the system prompt and the ordered turn sequence to the
	// language model and returns the assistant reply text. The turn order
	// must be forwarded verbatim — reordering changes model behaviour.
	// maxTokens bounds the reply length; zero means the backend default.
	Complete(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error)
}

// Gateway bundles one backend per remote capability.
type Gateway struct {
	Transcriber Transcriber
	Synthesizer Synthesizer
	Completer   Completer
}

// Validate reports an error naming every capability that is missing a backend.
func (g *Gateway) Validate() error {
	var errs []error
	if g.Transcriber == nil {
		errs = append(errs, errors.New("gateway: no transcriber configured"))
	}
	if g.Synthesizer == nil {
		errs = append(errs, errors.New("gateway: no synthesizer configured"))
	}
	if g.Completer == nil {
		errs = append(errs, errors.New("gateway: no completer configured"))
	}
	return errors.Join(errs...)
}

// RemoteError wraps a failure from a remote AI backend with the capability
// that failed. Callers use it to distinguish gateway failures (terminal
// "failed" task state, retry candidates) from local programming errors.
type RemoteError struct {
	// Capability is "transcribe", "synthesize", or "complete".
	Capability string

	// Backend names the provider implementation (e.g., "openai", "anyllm").
	Backend string

	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway: %s via %s: %v", e.Capability, e.Backend, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}
