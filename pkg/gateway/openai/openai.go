// Package openai provides gateway backends for all three remote capabilities
// using the OpenAI API: whisper transcription, tts speech synthesis, and chat
// completion. A single [Client] implements gateway.Transcriber,
// gateway.Synthesizer, and gateway.Completer.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

const (
	defaultChatModel       = "gpt-4"
	defaultTranscribeModel = "whisper-1"
	defaultSpeechModel     = "tts-1"
	defaultVoice           = "shimmer"
)

// Compile-time assertions that Client covers every gateway capability.
var (
	_ gateway.Transcriber = (*Client)(nil)
	_ gateway.Synthesizer = (*Client)(nil)
	_ gateway.Completer   = (*Client)(nil)
)

// config holds optional configuration for the client.
type config struct {
	baseURL         string
	chatModel       string
	transcribeModel string
	speechModel     string
	voice           string
	timeout         time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithChatModel sets the chat completion model (e.g., "gpt-4o"). Defaults to "gpt-4".
func WithChatModel(model string) Option {
	return func(c *config) {
		c.chatModel = model
	}
}

// WithTranscribeModel sets the transcription model. Defaults to "whisper-1".
func WithTranscribeModel(model string) Option {
	return func(c *config) {
		c.transcribeModel = model
	}
}

// WithSpeechModel sets the speech synthesis model. Defaults to "tts-1".
func WithSpeechModel(model string) Option {
	return func(c *config) {
		c.speechModel = model
	}
}

// WithVoice sets the synthesis voice (e.g., "shimmer", "nova"). Defaults to "shimmer".
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Client implements all three gateway capabilities via the OpenAI API.
// It is safe for concurrent use.
type Client struct {
	client          oai.Client
	chatModel       string
	transcribeModel string
	speechModel     string
	voice           string
}

// New constructs a Client. apiKey must be non-empty; returns
// [gateway.ErrMissingCredentials] otherwise so startup can fail with a clear
// diagnostic.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w (set the provider api_key or OPENAI_API_KEY)", gateway.ErrMissingCredentials)
	}

	cfg := &config{
		chatModel:       defaultChatModel,
		transcribeModel: defaultTranscribeModel,
		speechModel:     defaultSpeechModel,
		voice:           defaultVoice,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client:          oai.NewClient(reqOpts...),
		chatModel:       cfg.chatModel,
		transcribeModel: cfg.transcribeModel,
		speechModel:     cfg.speechModel,
		voice:           cfg.voice,
	}, nil
}

// Transcribe implements gateway.Transcriber using the audio transcription API.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(c.transcribeModel),
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	})
	if err != nil {
		return "", &gateway.RemoteError{Capability: "transcribe", Backend: "openai", Err: err}
	}
	return resp.Text, nil
}

// Synthesize implements gateway.Synthesizer using the speech API. The returned
// bytes are MP3-encoded audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model: oai.SpeechModel(c.speechModel),
		Voice: oai.AudioSpeechNewParamsVoice(c.voice),
		Input: text,
	})
	if err != nil {
		return nil, &gateway.RemoteError{Capability: "synthesize", Backend: "openai", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &gateway.RemoteError{Capability: "synthesize", Backend: "openai", Err: fmt.Errorf("read audio body: %w", err)}
	}
	return data, nil
}

// Complete implements gateway.Completer using the chat completions API. The
// turn order is forwarded verbatim.
func (c *Client) Complete(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		switch t.Role {
		case types.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(t.Content))
		default:
			messages = append(messages, oai.UserMessage(t.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.chatModel),
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &gateway.RemoteError{Capability: "complete", Backend: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &gateway.RemoteError{Capability: "complete", Backend: "openai", Err: fmt.Errorf("empty choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}
