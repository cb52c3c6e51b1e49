package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that answers with a synthetic
// transcript, for development and tests.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audioBytes []byte, language string) (string, error) {
	return fmt.Sprintf("[%s transcript length=%d]", language, len(audioBytes)), nil
}
