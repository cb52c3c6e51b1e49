// Package protocol defines the pipeline event payloads published on the bus.
package protocol

import "time"

// Transcript is emitted after speech recognition completes.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is emitted after the chat upstream answers.
type Reply struct {
	SessionID        string    `json:"session_id"`
	Text             string    `json:"text"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// SynthesisDone is emitted once reply audio has been produced (or skipped).
type SynthesisDone struct {
	SessionID  string    `json:"session_id"`
	Samples    int       `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Degraded   bool      `json:"degraded"`
	Skipped    bool      `json:"skipped"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectTranscript = "voice.transcript"
	SubjectReply      = "voice.reply"
	SubjectSynthesis  = "voice.synthesis"
)
