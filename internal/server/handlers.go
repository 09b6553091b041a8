package server

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/museworks/velatura/internal/respond"
	"github.com/museworks/velatura/internal/session"
	"github.com/museworks/velatura/pkg/types"
)

// maxUploadBytes caps transcription uploads. 16 kHz mono PCM at the maximum
// utterance length fits comfortably.
const maxUploadBytes = 32 << 20

type startSessionResponse struct {
	SessionID         string  `json:"session_id"`
	WelcomeText       string  `json:"welcome_text,omitempty"`
	WelcomeAudio      string  `json:"welcome_audio,omitempty"`
	EstimatedDuration float64 `json:"estimated_duration,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := s.store.Create()

	resp := startSessionResponse{SessionID: id}
	if welcome := s.cfg.Persona.WelcomeText; welcome != "" {
		resp.WelcomeText = welcome
		_, resp.EstimatedDuration = respond.EstimateTimings(welcome)

		start := time.Now()
		audio, err := s.gw.Synthesizer.Synthesize(r.Context(), welcome)
		s.metrics.RecordGatewayCall(r.Context(), "synthesize", time.Since(start), err)
		if err != nil {
			// The session is still usable without a spoken greeting.
			slog.Warn("server: welcome synthesis failed", "session_id", id, "err", err)
		} else {
			resp.WelcomeAudio = base64.StdEncoding.EncodeToString(audio)
		}
	}

	slog.Info("server: session started", "session_id", id)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading audio upload failed")
		return
	}

	start := time.Now()
	text, err := s.gw.Transcriber.Transcribe(r.Context(), wav)
	s.metrics.RecordGatewayCall(r.Context(), "transcribe", time.Since(start), err)
	if err != nil {
		slog.Error("server: transcription failed", "err", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type fillerResponse struct {
	Text              string  `json:"text"`
	AudioBase64       string  `json:"audio_base64"`
	EstimatedDuration float64 `json:"estimated_duration"`
}

func (s *Server) handleGetFiller(w http.ResponseWriter, r *http.Request) {
	entry, err := s.fillers.Random(r.Context())
	if err != nil {
		slog.Error("server: filler retrieval failed", "err", err)
		writeError(w, http.StatusBadGateway, "filler synthesis failed")
		return
	}
	_, dur := respond.EstimateTimings(entry.Text)
	writeJSON(w, http.StatusOK, fillerResponse{
		Text:              entry.Text,
		AudioBase64:       base64.StdEncoding.EncodeToString(entry.Audio),
		EstimatedDuration: dur,
	})
}

type getResponseRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	var req getResponseRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "no text provided")
		return
	}

	if err := s.sched.Start(req.SessionID, req.Text); err != nil {
		if errors.Is(err, respond.ErrGenerationInFlight) {
			writeError(w, http.StatusConflict, "a response is already being generated for this session")
			return
		}
		slog.Error("server: start generation failed", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "starting generation failed")
		return
	}

	s.metrics.GenerationsInFlight.Add(r.Context(), 1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}

type checkResponseRequest struct {
	SessionID string `json:"session_id"`
}

type checkResponseBody struct {
	Completed   bool               `json:"completed"`
	Status      string             `json:"status,omitempty"`
	Text        string             `json:"text,omitempty"`
	AudioBase64 string             `json:"audio_base64,omitempty"`
	Duration    float64            `json:"duration,omitempty"`
	PhonemeData []types.WordTiming `json:"phoneme_data,omitempty"`
}

func (s *Server) handleCheckResponse(w http.ResponseWriter, r *http.Request) {
	var req checkResponseRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "no session_id provided")
		return
	}

	status, res := s.sched.Consume(req.SessionID)
	switch status {
	case respond.StatusNone:
		writeError(w, http.StatusNotFound, "no response being generated")

	case respond.StatusProcessing:
		writeJSON(w, http.StatusOK, checkResponseBody{Completed: false, Status: "processing"})

	case respond.StatusFailed:
		slog.Warn("server: delivering failed generation", "session_id", req.SessionID, "err", res.Err)
		writeError(w, http.StatusBadGateway, "response generation failed: "+res.Err.Error())

	case respond.StatusCompleted:
		writeJSON(w, http.StatusOK, checkResponseBody{
			Completed:   true,
			Text:        res.Text,
			AudioBase64: base64.StdEncoding.EncodeToString(res.Audio),
			Duration:    res.Duration,
			PhonemeData: res.Timings,
		})
	}
}

type endSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "no session_id provided")
		return
	}

	if err := s.store.Destroy(req.SessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "ending session failed")
		return
	}

	slog.Info("server: session ended", "session_id", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "no session_id provided")
		return
	}

	audio, ok := s.sched.LastAudio(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "no audio available for this session")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="response.mp3"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		slog.Warn("server: writing audio response", "err", err)
	}
}
