// Package runtime wires the speech, chat and synthesis components together
// and owns their lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/venomvoice/voicecore/internal/audio"
	"github.com/venomvoice/voicecore/internal/bus"
	"github.com/venomvoice/voicecore/internal/chat"
	"github.com/venomvoice/voicecore/internal/config"
	"github.com/venomvoice/voicecore/internal/history"
	"github.com/venomvoice/voicecore/internal/httpapi"
	"github.com/venomvoice/voicecore/internal/natsserver"
	"github.com/venomvoice/voicecore/internal/stt"
	"github.com/venomvoice/voicecore/internal/tts"
	"github.com/venomvoice/voicecore/internal/voicechat"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start builds every component, serves HTTP until ctx is cancelled, then
// shuts everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var embedded *natsserver.EmbeddedServer
	var events *bus.Client
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			embedded, err = natsserver.Start(busCfg, r.logger)
			if err != nil {
				return fmt.Errorf("failed to start embedded bus: %w", err)
			}
			defer embedded.Shutdown()
			if len(busCfg.Servers) == 0 {
				busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
			}
		}
		events, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer events.Close()
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Error("history close error", slog.String("error", err.Error()))
		}
	}()
	if store.Enabled() {
		if err := store.Prune(ctx); err != nil {
			r.logger.Warn("history prune failed", slog.String("error", err.Error()))
		}
	}

	encoder, err := audio.NewEncoder(r.cfg.TTS.EncoderCommand)
	if err != nil {
		return fmt.Errorf("failed to configure audio encoder: %w", err)
	}
	engine := tts.NewEngine(r.cfg.TTS, r.logger)
	synth, err := tts.NewSynthesizer(r.cfg.TTS, engine, encoder, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}

	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to build recognizer: %w", err)
	}
	responder := chat.NewResponder(r.cfg.Chat, r.logger)
	orchestrator := voicechat.New(recognizer, responder, synth, events, store, r.logger)

	files, err := httpapi.NewFileStore(
		r.cfg.HTTP.TempDir,
		time.Duration(r.cfg.HTTP.FileTTLSeconds)*time.Second,
		r.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare scratch directory: %w", err)
	}
	defer files.Close()

	api := httpapi.NewServer(r.cfg, httpapi.Deps{
		Synthesizer:  synth,
		Recognizer:   recognizer,
		Responder:    responder,
		Orchestrator: orchestrator,
		Files:        files,
		Store:        store,
		Events:       events,
		Ready:        r.ready.Load,
	}, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("tts_mode", r.cfg.TTS.Mode),
		slog.String("stt_mode", r.cfg.STT.Mode),
	)

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
