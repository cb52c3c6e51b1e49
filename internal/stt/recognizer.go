package stt

import (
	"context"
	"fmt"

	"github.com/venomvoice/voicecore/internal/config"
)

// Recognizer abstracts speech-to-text backends. Input is a complete encoded
// audio buffer. An empty transcript with a nil error is a valid outcome
// (silence or noise), distinct from a hard failure.
type Recognizer interface {
	Transcribe(ctx context.Context, audioBytes []byte, language string) (string, error)
}

// NewRecognizer selects the backend for the configured mode.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "exec":
		return NewExecRecognizer(cfg)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
