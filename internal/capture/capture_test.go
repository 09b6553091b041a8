package capture_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/museworks/velatura/internal/capture"
	"github.com/museworks/velatura/internal/config"
)

const (
	testFrameSamples = 1024
	testSampleRate   = 16000
	frameMs          = testFrameSamples * 1000 / testSampleRate // 64
)

// testConfig sets up 64 ms frames with a 5-frame silence limit and a 3-frame
// pre-roll, which keeps frame arithmetic in the tests exact.
func testConfig() config.CaptureConfig {
	return config.CaptureConfig{
		SampleRate:      testSampleRate,
		Channels:        1,
		FrameSamples:    testFrameSamples,
		EnergyThreshold: 500,
		SilenceLimitMs:  5 * frameMs,
		PreRollMs:       3 * frameMs,
		MaxUtteranceMs:  60 * frameMs,
		Mode:            config.CaptureVAD,
		FixedDurationMs: 4 * frameMs,
	}
}

// frame returns a mono PCM frame whose every sample holds the given value, so
// its RMS equals the absolute value.
func frame(value int16) []byte {
	b := make([]byte, testFrameSamples*2)
	for i := 0; i < testFrameSamples; i++ {
		b[i*2] = byte(value)
		b[i*2+1] = byte(value >> 8)
	}
	return b
}

// sliceSource replays a fixed frame sequence, then io.EOF.
type sliceSource struct {
	frames [][]byte
	next   int
}

func (s *sliceSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func repeat(f []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func TestCapture_SpeechBurst(t *testing.T) {
	t.Parallel()
	silence, speech := frame(100), frame(3000)

	// 10 silent frames, 30 speech frames, trailing silence.
	var seq [][]byte
	seq = append(seq, repeat(silence, 10)...)
	seq = append(seq, repeat(speech, 30)...)
	seq = append(seq, repeat(silence, 10)...)

	e := capture.New(testConfig())
	utt, err := e.Capture(context.Background(), &sliceSource{frames: seq})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// 3 pre-roll frames + 30 speech frames + 5 trailing silence frames.
	wantFrames := 3 + 30 + 5
	gotFrames := len(utt.PCM) / (testFrameSamples * 2)
	if gotFrames != wantFrames {
		t.Errorf("captured %d frames, want %d", gotFrames, wantFrames)
	}

	// The utterance must open with the retained pre-roll, not the speech onset.
	if !bytes.Equal(utt.PCM[:len(silence)], silence) {
		t.Error("first captured frame is not the pre-roll silence frame")
	}
	if utt.SampleRate != testSampleRate || utt.Channels != 1 {
		t.Errorf("utterance format = %d Hz / %d ch, want %d / 1", utt.SampleRate, utt.Channels, testSampleRate)
	}
}

func TestCapture_NoSpeech(t *testing.T) {
	t.Parallel()
	e := capture.New(testConfig())
	_, err := e.Capture(context.Background(), &sliceSource{frames: repeat(frame(100), 20)})
	if !errors.Is(err, capture.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestCapture_SilentSourceStopsAtMaxDuration(t *testing.T) {
	t.Parallel()
	// A live source that never goes quiet on the transport (no EOF) but
	// carries no speech must still give up at the utterance cap.
	silence := frame(100)
	var reads int
	src := capture.FrameSourceFunc(func(ctx context.Context) ([]byte, error) {
		reads++
		return silence, nil
	})

	e := capture.New(testConfig())
	_, err := e.Capture(context.Background(), src)
	if !errors.Is(err, capture.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if reads > 60 {
		t.Errorf("engine read %d silent frames before giving up, want <= 60 (hard cap)", reads)
	}
}

func TestCapture_SourceEndsMidUtterance(t *testing.T) {
	t.Parallel()
	var seq [][]byte
	seq = append(seq, repeat(frame(3000), 8)...)

	e := capture.New(testConfig())
	utt, err := e.Capture(context.Background(), &sliceSource{frames: seq})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := len(utt.PCM) / (testFrameSamples * 2); got != 8 {
		t.Errorf("captured %d frames, want 8", got)
	}
}

func TestCapture_MaxUtteranceCap(t *testing.T) {
	t.Parallel()
	// Speech that never stops must still terminate at the hard cap (60 frames).
	e := capture.New(testConfig())
	utt, err := e.Capture(context.Background(), &sliceSource{frames: repeat(frame(3000), 200)})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := len(utt.PCM) / (testFrameSamples * 2); got != 60 {
		t.Errorf("captured %d frames, want 60 (hard cap)", got)
	}
}

func TestCapture_MalformedFrameCountsAsSilence(t *testing.T) {
	t.Parallel()
	speech := frame(3000)
	short := []byte{0x10} // wrong size, must score zero energy

	var seq [][]byte
	seq = append(seq, speech, speech)
	seq = append(seq, repeat(short, 5)...) // 5 zero-energy frames = silence limit

	e := capture.New(testConfig())
	utt, err := e.Capture(context.Background(), &sliceSource{frames: seq})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	// 2 speech frames + 5 malformed frames; malformed bytes are still recorded.
	wantBytes := 2*len(speech) + 5*len(short)
	if len(utt.PCM) != wantBytes {
		t.Errorf("captured %d bytes, want %d", len(utt.PCM), wantBytes)
	}
}

func TestCapture_DeviceFailure(t *testing.T) {
	t.Parallel()
	deviceErr := errors.New("mic unplugged")
	src := capture.FrameSourceFunc(func(ctx context.Context) ([]byte, error) {
		return nil, deviceErr
	})

	e := capture.New(testConfig())
	_, err := e.Capture(context.Background(), src)
	if !errors.Is(err, deviceErr) {
		t.Fatalf("err = %v, want wrapped device error", err)
	}
}

func TestCapture_FixedMode(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Mode = config.CaptureFixed

	// Silence only: fixed mode records anyway, for the configured 4 frames.
	e := capture.New(cfg)
	utt, err := e.Capture(context.Background(), &sliceSource{frames: repeat(frame(0), 20)})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := len(utt.PCM) / (testFrameSamples * 2); got != 4 {
		t.Errorf("captured %d frames, want 4", got)
	}
}

func TestCapture_FixedModeEmptySource(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Mode = config.CaptureFixed

	e := capture.New(cfg)
	_, err := e.Capture(context.Background(), &sliceSource{})
	if !errors.Is(err, capture.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestReaderSource_PartialTailFrame(t *testing.T) {
	t.Parallel()
	data := make([]byte, testFrameSamples*2+10) // one full frame + 10 bytes
	src := capture.NewReaderSource(bytes.NewReader(data), testFrameSamples, 1)

	ctx := context.Background()
	f1, err := src.ReadFrame(ctx)
	if err != nil || len(f1) != testFrameSamples*2 {
		t.Fatalf("first frame: len=%d err=%v", len(f1), err)
	}
	f2, err := src.ReadFrame(ctx)
	if err != nil || len(f2) != 10 {
		t.Fatalf("tail frame: len=%d err=%v", len(f2), err)
	}
	if _, err := src.ReadFrame(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("after tail: err = %v, want io.EOF", err)
	}
}
