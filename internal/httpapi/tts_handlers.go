package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/venomvoice/voicecore/internal/audio"
)

// checkPhrase is the fixed text used by the synthesis smoke test.
const checkPhrase = "안녕하세요, 메티스 TTS입니다."

type synthesizeRequest struct {
	Text      string `json:"text"`
	UseCache  *bool  `json:"use_cache"`
	SpeakerID string `json:"speaker_id,omitempty"`
	Format    string `json:"format,omitempty"`
}

func (r synthesizeRequest) useCache() bool {
	return r.UseCache == nil || *r.UseCache
}

type synthesizeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	FileURL string `json:"file_url,omitempty"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	// speaker_id is accepted but not implemented; the cache key would need
	// to include it before speaker selection can be honored.
	if req.SpeakerID != "" {
		s.logger.Warn("speaker selection requested but not implemented", slog.String("speaker_id", req.SpeakerID))
	}

	s.logger.Info("tts request", slog.Int("chars", len(req.Text)), slog.Bool("use_cache", req.useCache()))

	name := s.files.NewName("wav")
	path, err := s.files.Path(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to allocate scratch file")
		return
	}
	if _, err := s.synth.SynthesizeToFile(r.Context(), req.Text, path, req.useCache()); err != nil {
		s.logger.Error("synthesis to file failed", slogError(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("synthesis failed: %v", err))
		return
	}
	s.files.Schedule(name)

	writeJSON(w, http.StatusOK, synthesizeResponse{
		Success: true,
		Message: "synthesis complete",
		FileURL: "/tts/download/" + name,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file_name")
	path, err := s.files.Path(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	format := req.Format
	if format == "" {
		format = "wav"
	}

	_, data, err := s.synth.SynthesizeToBytes(r.Context(), req.Text, format, req.useCache())
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("synthesis stream failed", slogError(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("synthesis failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "audio/"+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleTTSCheck(w http.ResponseWriter, r *http.Request) {
	res := s.synth.Synthesize(r.Context(), checkPhrase, true)
	if res.Degraded {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "synthesis degraded: " + res.Reason,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "tts service operational",
	})
}
