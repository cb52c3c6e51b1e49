package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/venomvoice/voicecore/internal/chat"
	"github.com/venomvoice/voicecore/internal/voicechat"
)

const maxUploadBytes = 32 << 20

type chatRequest struct {
	Message      string         `json:"message"`
	History      []chat.Message `json:"history"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Success  bool        `json:"success"`
	Response string      `json:"response"`
	Usage    *chat.Usage `json:"usage"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	temperature := s.cfg.Chat.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := s.cfg.Chat.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	reply, usage, err := s.responder.Respond(r.Context(), req.Message, req.History, req.SystemPrompt, temperature, maxTokens)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Success: true, Response: reply, Usage: usage})
}

type voiceChatResponse struct {
	Success     bool        `json:"success"`
	UserText    string      `json:"user_text"`
	AIResponse  string      `json:"ai_response"`
	AudioBase64 *string     `json:"audio_base64"`
	Usage       *chat.Usage `json:"usage"`
}

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
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

	// Malformed history degrades to an empty list, matching the lenient
	// multipart contract.
	var turns []chat.Message
	if raw := r.FormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &turns); err != nil {
			turns = nil
		}
	}

	language := r.FormValue("language")
	if language == "" {
		language = "ko"
	}
	temperature := s.cfg.Chat.Temperature
	if raw := r.FormValue("temperature"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			temperature = parsed
		}
	}

	result, err := s.orchestrator.Run(r.Context(), voicechat.Request{
		SessionID:    r.FormValue("session_id"),
		Audio:        audioBytes,
		Language:     language,
		History:      turns,
		SystemPrompt: r.FormValue("system_prompt"),
		Temperature:  temperature,
		MaxTokens:    s.cfg.Chat.MaxTokens,
	})
	if err != nil {
		s.writeVoiceChatError(w, err)
		return
	}

	resp := voiceChatResponse{
		Success:    true,
		UserText:   result.UserText,
		AIResponse: result.ReplyText,
		Usage:      result.Usage,
	}
	if result.AudioBase64 != "" {
		resp.AudioBase64 = &result.AudioBase64
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.responder.Check(r.Context()); err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"message":  "chat service operational",
		"upstream": "connected",
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || !s.store.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "history persistence is disabled")
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	turns, err := s.store.ListTurns(r.Context(), sessionID, 100)
	if err != nil {
		s.logger.Error("failed to list history", slogError(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// writeChatError maps the responder taxonomy onto HTTP statuses: missing
// credential is a server configuration fault, unreachable or misbehaving
// upstreams are dependency failures.
func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	s.logger.Error("chat request failed", slogError(err))
	switch {
	case errors.Is(err, chat.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, chat.ErrUpstreamUnavailable), errors.Is(err, chat.ErrUpstreamContract):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeVoiceChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, voicechat.ErrNothingUnderstood):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, voicechat.ErrRecognizerUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, chat.ErrMissingAPIKey),
		errors.Is(err, chat.ErrUpstreamUnavailable),
		errors.Is(err, chat.ErrUpstreamContract):
		s.writeChatError(w, err)
	default:
		s.logger.Error("voice chat failed", slogError(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
