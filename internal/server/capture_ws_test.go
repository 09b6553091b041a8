package server_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/museworks/velatura/pkg/gateway/mock"
)

// pcmFrame builds a mono frame of 1024 samples all holding value.
func pcmFrame(value int16) []byte {
	b := make([]byte, 1024*2)
	for i := 0; i < 1024; i++ {
		b[i*2] = byte(value)
		b[i*2+1] = byte(value >> 8)
	}
	return b
}

func TestCaptureWebSocket_SpeechTranscribed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &mock.Gateway{TranscribeText: "tell me about your art"})

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/capture", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Two silent frames, a speech burst, then enough silence to end capture.
	frames := [][]byte{pcmFrame(100), pcmFrame(100)}
	for i := 0; i < 6; i++ {
		frames = append(frames, pcmFrame(3000))
	}
	for i := 0; i < 6; i++ {
		frames = append(frames, pcmFrame(100))
	}
	for _, fr := range frames {
		if err := conn.Write(ctx, websocket.MessageBinary, fr); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var res struct {
		Text     string `json:"text"`
		NoSpeech bool   `json:"no_speech"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode result %q: %v", data, err)
	}
	if res.NoSpeech || res.Text != "tell me about your art" {
		t.Errorf("result = %+v", res)
	}
	if len(f.mock.TranscribeCalls) != 1 {
		t.Errorf("transcribe calls = %d, want 1", len(f.mock.TranscribeCalls))
	}
}

func TestCaptureWebSocket_NoSpeech(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &mock.Gateway{})

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/capture", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Only silence, then the end-of-stream marker: no speech was captured.
	for i := 0; i < 4; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(50)); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("end")); err != nil {
		t.Fatalf("write end marker: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var res struct {
		NoSpeech bool   `json:"no_speech"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode result %q: %v", data, err)
	}
	if !res.NoSpeech || res.Message == "" {
		t.Errorf("result = %+v", res)
	}
}
