package httpapi

import (
	"io"
	"net/http"
	"os"
	"time"
)

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if s.recognizer == nil {
		writeError(w, http.StatusServiceUnavailable, "speech recognition is not available")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()
	audioBytes, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio upload")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = s.cfg.STT.Language
	}

	text, err := s.recognizer.Transcribe(r.Context(), audioBytes, language)
	if err != nil {
		s.logger.Error("transcription failed", slogError(err))
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cacheLen, hits, misses := s.synth.CacheStats()

	checkpointPresent := false
	if s.cfg.TTS.CheckpointPath != "" {
		if _, err := os.Stat(s.cfg.TTS.CheckpointPath); err == nil {
			checkpointPresent = true
		}
	}

	status := map[string]any{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"tts": map[string]any{
			"mode":               s.cfg.TTS.Mode,
			"checkpoint_present": checkpointPresent,
			"sample_rate":        s.synth.SampleRate(),
			"cache": map[string]any{
				"entries": cacheLen,
				"hits":    hits,
				"misses":  misses,
			},
		},
		"stt": map[string]any{
			"mode":     s.cfg.STT.Mode,
			"language": s.cfg.STT.Language,
		},
		"chat": map[string]any{
			"endpoint": s.cfg.Chat.Endpoint,
			"model":    s.cfg.Chat.Model,
			"key_set":  os.Getenv(s.cfg.Chat.APIKeyEnv) != "",
		},
		"bus": map[string]any{
			"enabled":   s.events != nil,
			"connected": s.events != nil && s.events.Healthy(),
		},
		"history": map[string]any{
			"enabled": s.store != nil && s.store.Enabled(),
		},
	}
	writeJSON(w, http.StatusOK, status)
}
