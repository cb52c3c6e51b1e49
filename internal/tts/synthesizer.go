package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/venomvoice/voicecore/internal/audio"
	"github.com/venomvoice/voicecore/internal/config"
	"github.com/venomvoice/voicecore/internal/synthcache"
	"github.com/venomvoice/voicecore/internal/textseg"
)

const (
	// segmentThreshold is the rune count above which text is split into
	// sentence chunks and synthesized per chunk.
	segmentThreshold = 100
	// inferenceSteps trades quality against speed.
	inferenceSteps = 25
	// guidanceScale is the classifier-free guidance weight.
	guidanceScale = 2.5
)

// Result is the outcome of one synthesis call. Degraded results carry one
// second of silence (or partially silent concatenations) instead of an error
// so the serving layer keeps responding.
type Result struct {
	Audio    *audio.Buffer
	Degraded bool
	Reason   string
}

// Synthesizer turns text into audio, segmenting long inputs and memoizing
// repeated requests.
type Synthesizer struct {
	engine     Engine
	encoder    *audio.Encoder
	cache      *synthcache.Cache[Result]
	cfg        config.TTSConfig
	sampleRate int
	logger     *slog.Logger
}

// NewSynthesizer wires the engine, encoder and cache. The cache capacity is
// fixed for the life of the synthesizer.
func NewSynthesizer(cfg config.TTSConfig, engine Engine, encoder *audio.Encoder, logger *slog.Logger) (*Synthesizer, error) {
	cache, err := synthcache.New[Result](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		engine:     engine,
		encoder:    encoder,
		cache:      cache,
		cfg:        cfg,
		sampleRate: cfg.SampleRate,
		logger:     logger.With(slog.String("component", "synthesizer")),
	}, nil
}

// SampleRate reports the fixed output rate.
func (s *Synthesizer) SampleRate() int { return s.sampleRate }

// CacheStats reports cache length plus hit and miss counts.
func (s *Synthesizer) CacheStats() (length int, hits, misses int64) {
	hits, misses = s.cache.Stats()
	return s.cache.Len(), hits, misses
}

// Synthesize produces audio for text. The cache wraps the whole call, keyed
// by the original unsegmented text, and only when useCache is true; bypassing
// the cache neither reads nor writes it.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, useCache bool) Result {
	if !useCache {
		return s.synthesizeText(ctx, text)
	}
	return s.cache.GetOrCompute(text, func() Result {
		return s.synthesizeText(ctx, text)
	})
}

func (s *Synthesizer) synthesizeText(ctx context.Context, text string) Result {
	if utf8.RuneCountInString(text) <= segmentThreshold {
		return s.synthesizeUnit(ctx, text)
	}

	chunks := textseg.Split(text)
	if len(chunks) == 0 {
		return Result{Audio: audio.Empty(s.sampleRate)}
	}
	// A single chunk means no delimiter was found; recursing would not make
	// the input shorter, so synthesize it as one unit.
	if len(chunks) == 1 && chunks[0] == text {
		return s.synthesizeUnit(ctx, text)
	}

	parts := make([]*audio.Buffer, 0, len(chunks))
	degraded := false
	reason := ""
	for _, chunk := range chunks {
		res := s.synthesizeText(ctx, chunk)
		parts = append(parts, res.Audio)
		if res.Degraded && !degraded {
			degraded = true
			reason = res.Reason
		}
	}
	return Result{Audio: audio.Concat(s.sampleRate, parts...), Degraded: degraded, Reason: reason}
}

// synthesizeUnit runs one inference call and degrades to one second of
// silence on any failure.
func (s *Synthesizer) synthesizeUnit(ctx context.Context, text string) Result {
	// A real model cannot clone a voice without the prompt recording, so in
	// exec mode an unset path degrades the same way a missing file does.
	if s.cfg.PromptVoicePath == "" {
		if s.cfg.Mode == "exec" {
			s.logger.Warn("prompt voice not configured, returning silence")
			return s.degraded("prompt voice file missing")
		}
	} else if _, err := os.Stat(s.cfg.PromptVoicePath); err != nil {
		s.logger.Warn("prompt voice file missing, returning silence",
			slog.String("path", s.cfg.PromptVoicePath))
		return s.degraded("prompt voice file missing")
	}

	samples, err := s.engine.Infer(ctx, InferRequest{
		PromptSpeechPath: s.cfg.PromptVoicePath,
		PromptText:       s.cfg.PromptText,
		Text:             text,
		Steps:            inferenceSteps,
		Guidance:         guidanceScale,
	})
	if err != nil {
		s.logger.Warn("inference failed, returning silence", slogError(err))
		return s.degraded(fmt.Sprintf("inference failed: %v", err))
	}
	return Result{Audio: &audio.Buffer{Samples: samples, SampleRate: s.sampleRate}}
}

func (s *Synthesizer) degraded(reason string) Result {
	return Result{
		Audio:    audio.Silence(silenceSamples, s.sampleRate),
		Degraded: true,
		Reason:   reason,
	}
}

// SynthesizeToFile writes the synthesized audio to a WAV file and returns
// the synthesis result. Encoding errors are reported; synthesis itself never
// fails (see Synthesize).
func (s *Synthesizer) SynthesizeToFile(ctx context.Context, text, path string, useCache bool) (Result, error) {
	res := s.Synthesize(ctx, text, useCache)
	if err := audio.WriteWAVFile(path, res.Audio); err != nil {
		return res, err
	}
	return res, nil
}

// SynthesizeToBytes encodes the synthesized audio into an in-memory byte
// buffer in the requested container format (wav, ogg, flac).
func (s *Synthesizer) SynthesizeToBytes(ctx context.Context, text, format string, useCache bool) (Result, []byte, error) {
	res := s.Synthesize(ctx, text, useCache)
	data, err := s.encoder.Encode(ctx, res.Audio, format)
	if err != nil {
		return res, nil, err
	}
	return res, data, nil
}
