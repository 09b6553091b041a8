// Package whisperlocal provides a gateway.Transcriber backed by a locally
// running whisper.cpp server (the whisper-server binary, which exposes a REST
// API at POST /inference). It lets a deployment keep transcription on-premise
// while the synthesis and completion capabilities remain remote.
package whisperlocal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/museworks/velatura/pkg/gateway"
)

const defaultTimeout = 30 * time.Second

// Compile-time assertion that Transcriber implements gateway.Transcriber.
var _ gateway.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). When empty the server auto-detects.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements gateway.Transcriber against a whisper.cpp HTTP
// server. It is safe for concurrent use.
type Transcriber struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Transcriber that connects to the whisper.cpp server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisperlocal: %w (set providers.transcriber.base_url)", gateway.ErrMissingCredentials)
	}
	t := &Transcriber{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe POSTs the WAV payload to the /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisperlocal: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisperlocal: write wav data: %w", err)
	}
	if t.language != "" {
		if err := mw.WriteField("language", t.language); err != nil {
			return "", fmt.Errorf("whisperlocal: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisperlocal: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisperlocal: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &gateway.RemoteError{Capability: "transcribe", Backend: "whisperlocal", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &gateway.RemoteError{
			Capability: "transcribe",
			Backend:    "whisperlocal",
			Err:        fmt.Errorf("server returned HTTP %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &gateway.RemoteError{Capability: "transcribe", Backend: "whisperlocal", Err: fmt.Errorf("read response body: %w", err)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &gateway.RemoteError{Capability: "transcribe", Backend: "whisperlocal", Err: fmt.Errorf("parse JSON response: %w", err)}
	}
	return result.Text, nil
}
