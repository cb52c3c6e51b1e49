// Package httpapi exposes the speech, chat and voice-chat endpoints.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/venomvoice/voicecore/internal/bus"
	"github.com/venomvoice/voicecore/internal/chat"
	"github.com/venomvoice/voicecore/internal/config"
	"github.com/venomvoice/voicecore/internal/history"
	"github.com/venomvoice/voicecore/internal/stt"
	"github.com/venomvoice/voicecore/internal/tts"
	"github.com/venomvoice/voicecore/internal/voicechat"
)

// Server holds the request handlers and their injected dependencies. There
// is no global lookup: the runtime constructs everything once and passes it
// in.
type Server struct {
	cfg          config.Config
	synth        *tts.Synthesizer
	recognizer   stt.Recognizer
	responder    *chat.Responder
	orchestrator *voicechat.Orchestrator
	files        *FileStore
	store        *history.Store
	events       *bus.Client
	ready        func() bool
	logger       *slog.Logger
	started      time.Time
}

type Deps struct {
	Synthesizer  *tts.Synthesizer
	Recognizer   stt.Recognizer
	Responder    *chat.Responder
	Orchestrator *voicechat.Orchestrator
	Files        *FileStore
	Store        *history.Store
	Events       *bus.Client
	Ready        func() bool
}

func NewServer(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		cfg:          cfg,
		synth:        deps.Synthesizer,
		recognizer:   deps.Recognizer,
		responder:    deps.Responder,
		orchestrator: deps.Orchestrator,
		files:        deps.Files,
		store:        deps.Store,
		events:       deps.Events,
		ready:        deps.Ready,
		logger:       logger.With(slog.String("component", "httpapi")),
		started:      time.Now(),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/tts", func(r chi.Router) {
		r.Post("/synthesize", s.handleSynthesize)
		r.Post("/synthesize/stream", s.handleSynthesizeStream)
		r.Get("/download/{file_name}", s.handleDownload)
		r.Get("/check", s.handleTTSCheck)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/stt", s.handleSTT)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.handleChat)
			r.Post("/voice", s.handleVoiceChat)
			r.Get("/check", s.handleChatCheck)
			r.Get("/history/{session_id}", s.handleChatHistory)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "voicecore speech chat server",
		"endpoints": map[string]string{
			"tts":    "/tts/synthesize - convert text to speech",
			"stt":    "/api/stt - convert speech to text",
			"chat":   "/api/chat/ - text chat completion",
			"voice":  "/api/chat/voice - combined voice chat",
			"status": "/status - component status",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
