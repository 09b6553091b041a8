package observe

import (
	"context"
	"time"

	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

// instrumentedGateway records latency and error metrics around every gateway
// capability call.
type instrumentedGateway struct {
	inner *gateway.Gateway
	m     *Metrics
}

// InstrumentGateway wraps gw so every Transcribe, Complete, and Synthesize
// call records to m. The returned bundle is a drop-in replacement.
func InstrumentGateway(gw *gateway.Gateway, m *Metrics) *gateway.Gateway {
	ig := &instrumentedGateway{inner: gw, m: m}
	return &gateway.Gateway{Transcriber: ig, Completer: ig, Synthesizer: ig}
}

func (g *instrumentedGateway) Transcribe(ctx context.Context, wav []byte) (string, error) {
	start := time.Now()
	text, err := g.inner.Transcriber.Transcribe(ctx, wav)
	g.m.RecordGatewayCall(ctx, "transcribe", time.Since(start), err)
	return text, err
}

func (g *instrumentedGateway) Complete(ctx context.Context, systemPrompt string, turns []types.Turn, maxTokens int) (string, error) {
	start := time.Now()
	reply, err := g.inner.Completer.Complete(ctx, systemPrompt, turns, maxTokens)
	g.m.RecordGatewayCall(ctx, "complete", time.Since(start), err)
	return reply, err
}

func (g *instrumentedGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	audio, err := g.inner.Synthesizer.Synthesize(ctx, text)
	g.m.RecordGatewayCall(ctx, "synthesize", time.Since(start), err)
	return audio, err
}
