package capture

import (
	"context"
	"fmt"
	"io"

	"layeh.com/gopus"

	"github.com/museworks/velatura/pkg/audio"
)

// ReaderSource reads fixed-size PCM frames from an io.Reader, such as the data
// section of a WAV file or a raw PCM pipe on stdin. A short final read is
// returned as a partial frame; the engine scores it as zero energy.
type ReaderSource struct {
	r          io.Reader
	frameBytes int
}

// NewReaderSource creates a frame source over r producing frames of
// frameSamples samples across the given channel count.
func NewReaderSource(r io.Reader, frameSamples, channels int) *ReaderSource {
	return &ReaderSource{r: r, frameBytes: frameSamples * channels * 2}
}

// ReadFrame implements [FrameSource].
func (s *ReaderSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.frameBytes)
	n, err := io.ReadFull(s.r, buf)
	if err == io.ErrUnexpectedEOF {
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// PacketReader supplies encoded audio packets, typically WebSocket binary
// messages. ReadPacket blocks until a packet arrives and returns io.EOF when
// the stream ends.
type PacketReader interface {
	ReadPacket(ctx context.Context) ([]byte, error)
}

// PacketReaderFunc adapts a function to the PacketReader interface.
type PacketReaderFunc func(ctx context.Context) ([]byte, error)

// ReadPacket implements PacketReader.
func (f PacketReaderFunc) ReadPacket(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// OpusSource decodes a stream of Opus packets into PCM frames. Each source
// owns its own decoder so decoder state stays consistent across consecutive
// packets of one stream.
type OpusSource struct {
	r            PacketReader
	dec          *gopus.Decoder
	frameSamples int
	channels     int
}

// NewOpusSource creates a frame source that decodes Opus packets from r.
// frameSamples is the expected samples per channel per packet and must match
// the encoder's frame size.
func NewOpusSource(r PacketReader, sampleRate, channels, frameSamples int) (*OpusSource, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("capture: create opus decoder: %w", err)
	}
	return &OpusSource{r: r, dec: dec, frameSamples: frameSamples, channels: channels}, nil
}

// ReadFrame implements [FrameSource]. A packet that fails to decode is
// surfaced as a device error; the engine aborts the capture rather than
// guessing at stream health.
func (s *OpusSource) ReadFrame(ctx context.Context) ([]byte, error) {
	pkt, err := s.r.ReadPacket(ctx)
	if err != nil {
		return nil, err
	}
	pcm, err := s.dec.Decode(pkt, s.frameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("capture: opus decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
