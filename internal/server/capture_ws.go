package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/museworks/velatura/internal/capture"
	"github.com/museworks/velatura/pkg/audio"
)

// captureResult is the JSON frame sent back once the capture ends.
type captureResult struct {
	Text     string `json:"text,omitempty"`
	NoSpeech bool   `json:"no_speech,omitempty"`
	Message  string `json:"message,omitempty"`
}

// endOfStream is the text frame a client sends to finish its frame stream
// while keeping the connection open for the result.
const endOfStream = "end"

// wsPacketReader adapts a WebSocket connection to [capture.PacketReader].
// Binary messages carry audio; the "end" text frame or a normal close ends
// the stream.
type wsPacketReader struct {
	conn *websocket.Conn
}

func (r *wsPacketReader) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := r.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, io.EOF
			}
			return nil, err
		}
		switch typ {
		case websocket.MessageBinary:
			return data, nil
		case websocket.MessageText:
			if string(data) == endOfStream {
				return nil, io.EOF
			}
			// Other text frames are control noise from the client; skip.
		}
	}
}

// handleCapture runs the capture engine over a client-streamed frame
// sequence. The client sends binary frames of raw PCM, or Opus packets with
// ?format=opus, and receives one JSON result: the transcription or a
// no-speech notice.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.CORSAllowedOrigins,
	})
	if err != nil {
		slog.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "capture aborted")

	cfg := s.captureCfg()
	reader := &wsPacketReader{conn: conn}

	var src capture.FrameSource
	switch r.URL.Query().Get("format") {
	case "", "pcm":
		src = capture.FrameSourceFunc(reader.ReadPacket)
	case "opus":
		src, err = capture.NewOpusSource(reader, cfg.SampleRate, cfg.Channels, cfg.FrameSamples)
		if err != nil {
			slog.Error("server: opus source setup failed", "err", err)
			conn.Close(websocket.StatusInternalError, "opus decoder unavailable")
			return
		}
	default:
		conn.Close(websocket.StatusUnsupportedData, "unknown audio format")
		return
	}

	// The capture runs as long as frames keep arriving, bounded by the
	// utterance cap plus slack for network stalls.
	ctx, cancel := context.WithTimeout(r.Context(),
		time.Duration(cfg.MaxUtteranceMs)*time.Millisecond+30*time.Second)
	defer cancel()

	eng := capture.New(cfg)
	utt, err := eng.Capture(ctx, src)
	switch {
	case isNoSpeech(err):
		s.metrics.CapturesNoSpeech.Add(ctx, 1)
		s.writeCaptureResult(ctx, conn, captureResult{NoSpeech: true, Message: noSpeechMessage})
		return
	case err != nil:
		slog.Warn("server: capture stream failed", "err", err)
		conn.Close(websocket.StatusInternalError, "capture failed")
		return
	}

	pcm := utt.PCM
	channels := utt.Channels
	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
		channels = 1
	}
	wav := audio.EncodeWAV(pcm, utt.SampleRate, channels)

	start := time.Now()
	text, err := s.gw.Transcriber.Transcribe(ctx, wav)
	s.metrics.RecordGatewayCall(ctx, "transcribe", time.Since(start), err)
	if err != nil {
		slog.Error("server: capture transcription failed", "err", err)
		conn.Close(websocket.StatusInternalError, "transcription failed")
		return
	}

	s.writeCaptureResult(ctx, conn, captureResult{Text: text})
}

// writeCaptureResult sends the terminal JSON frame and closes cleanly.
func (s *Server) writeCaptureResult(ctx context.Context, conn *websocket.Conn, res captureResult) {
	if err := writeWSJSON(ctx, conn, res); err != nil {
		slog.Warn("server: writing capture result", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "capture complete")
}

// writeWSJSON marshals v and writes it as a single text frame.
func writeWSJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	w, err := conn.Writer(ctx, websocket.MessageText)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
