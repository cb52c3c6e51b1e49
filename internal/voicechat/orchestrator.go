// Package voicechat composes recognition, chat and synthesis into one
// request/response cycle.
package voicechat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/venomvoice/voicecore/internal/bus"
	"github.com/venomvoice/voicecore/internal/chat"
	"github.com/venomvoice/voicecore/internal/history"
	"github.com/venomvoice/voicecore/internal/protocol"
	"github.com/venomvoice/voicecore/internal/stt"
	"github.com/venomvoice/voicecore/internal/tts"
)

// Stage names the orchestration state machine positions. Stages advance
// strictly forward; Aborted is terminal and reachable from any non-terminal
// stage.
type Stage string

const (
	StageReceived    Stage = "received"
	StageRecognized  Stage = "recognized"
	StageResponded   Stage = "responded"
	StageSynthesized Stage = "synthesized"
	StageCompleted   Stage = "completed"
	StageAborted     Stage = "aborted"
)

var (
	// ErrRecognizerUnavailable means no recognizer is configured.
	ErrRecognizerUnavailable = errors.New("speech recognizer unavailable")
	// ErrNothingUnderstood means recognition produced no usable text. It is
	// a user-facing validation error, not a system fault.
	ErrNothingUnderstood = errors.New("no speech recognized in audio")
)

// StageError wraps a failure with the stage it aborted from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("voice chat aborted at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Request is one uploaded voice-chat exchange.
type Request struct {
	SessionID    string
	Audio        []byte
	Language     string
	History      []chat.Message
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Result is constructed once per request and returned whole.
type Result struct {
	UserText    string
	ReplyText   string
	AudioBase64 string // empty when synthesis was skipped or failed
	Usage       *chat.Usage
}

// Synthesizer is the slice of the synthesis surface the orchestrator needs.
// *tts.Synthesizer satisfies it.
type Synthesizer interface {
	SynthesizeToBytes(ctx context.Context, text, format string, useCache bool) (tts.Result, []byte, error)
	SampleRate() int
}

// Orchestrator runs the Received → Recognized → Responded → Synthesized →
// Completed pipeline. Dependencies are injected; nil bus and store disable
// event publishing and persistence.
type Orchestrator struct {
	recognizer stt.Recognizer
	responder  *chat.Responder
	synth      Synthesizer
	events     *bus.Client
	store      *history.Store
	logger     *slog.Logger

	requests metric.Int64Counter
	degrades metric.Int64Counter
}

func New(recognizer stt.Recognizer, responder *chat.Responder, synth Synthesizer, events *bus.Client, store *history.Store, logger *slog.Logger) *Orchestrator {
	meter := otel.Meter("github.com/venomvoice/voicecore/voicechat")
	requests, err := meter.Int64Counter("voicechat.requests",
		metric.WithDescription("Voice chat requests by outcome"))
	if err != nil {
		logger.Warn("failed to create requests counter", slogError(err))
	}
	degrades, err := meter.Int64Counter("voicechat.synthesis_degraded",
		metric.WithDescription("Voice chat replies delivered without audio or with silence"))
	if err != nil {
		logger.Warn("failed to create degrade counter", slogError(err))
	}
	return &Orchestrator{
		recognizer: recognizer,
		responder:  responder,
		synth:      synth,
		events:     events,
		store:      store,
		logger:     logger.With(slog.String("component", "voicechat")),
		requests:   requests,
		degrades:   degrades,
	}
}

// Run executes one voice-chat cycle. Stages run strictly in order; each
// consumes its predecessor's output. Recognition and chat failures abort,
// synthesis failures do not: the textual reply is the primary payload.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	result, err := o.run(ctx, req)
	outcome := "completed"
	if err != nil {
		outcome = "aborted"
	}
	if o.requests != nil {
		o.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Result, error) {
	// Received → Recognized
	if o.recognizer == nil {
		return Result{}, &StageError{Stage: StageReceived, Err: ErrRecognizerUnavailable}
	}
	userText, err := o.recognizer.Transcribe(ctx, req.Audio, req.Language)
	if err != nil {
		return Result{}, &StageError{Stage: StageReceived, Err: fmt.Errorf("transcription failed: %w", err)}
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Result{}, &StageError{Stage: StageRecognized, Err: ErrNothingUnderstood}
	}
	o.logger.Info("recognized speech", slog.String("session_id", req.SessionID), slog.Int("chars", len(userText)))
	o.publish(protocol.SubjectTranscript, protocol.Transcript{
		SessionID: req.SessionID,
		Text:      userText,
		Language:  req.Language,
		Timestamp: time.Now().UTC(),
	})

	// Recognized → Responded
	replyText, usage, err := o.responder.Respond(ctx, userText, req.History, req.SystemPrompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return Result{}, &StageError{Stage: StageRecognized, Err: err}
	}
	reply := protocol.Reply{SessionID: req.SessionID, Text: replyText, Timestamp: time.Now().UTC()}
	if usage != nil {
		reply.PromptTokens = usage.PromptTokens
		reply.CompletionTokens = usage.CompletionTokens
	}
	o.publish(protocol.SubjectReply, reply)

	// Responded → Synthesized. Failures here are logged and dropped, never
	// propagated: the reply text still goes out.
	result := Result{UserText: userText, ReplyText: replyText, Usage: usage}
	synthRes, data, synthErr := o.synth.SynthesizeToBytes(ctx, replyText, "wav", true)
	done := protocol.SynthesisDone{
		SessionID:  req.SessionID,
		SampleRate: o.synth.SampleRate(),
		Timestamp:  time.Now().UTC(),
	}
	if synthErr != nil {
		o.logger.Warn("reply synthesis failed, continuing without audio",
			slog.String("session_id", req.SessionID), slogError(synthErr))
		done.Skipped = true
		if o.degrades != nil {
			o.degrades.Add(ctx, 1)
		}
	} else {
		result.AudioBase64 = base64.StdEncoding.EncodeToString(data)
		done.Samples = synthRes.Audio.Len()
		done.Degraded = synthRes.Degraded
		if synthRes.Degraded && o.degrades != nil {
			o.degrades.Add(ctx, 1)
		}
	}
	o.publish(protocol.SubjectSynthesis, done)

	o.record(ctx, req.SessionID, userText, replyText)

	// Synthesized → Completed
	return result, nil
}

func (o *Orchestrator) publish(subject string, payload any) {
	if o.events == nil {
		return
	}
	o.events.PublishJSON(subject, payload)
}

func (o *Orchestrator) record(ctx context.Context, sessionID, userText, replyText string) {
	if o.store == nil || !o.store.Enabled() || sessionID == "" {
		return
	}
	if err := o.store.AppendTurn(ctx, sessionID, "user", userText); err != nil {
		o.logger.Warn("failed to record user turn", slogError(err))
		return
	}
	if err := o.store.AppendTurn(ctx, sessionID, "assistant", replyText); err != nil {
		o.logger.Warn("failed to record assistant turn", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
