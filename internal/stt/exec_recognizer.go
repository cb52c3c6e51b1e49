package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/venomvoice/voicecore/internal/config"
)

type execRecognizer struct {
	cmd []string
	cfg config.STTConfig
	mu  sync.Mutex
}

type execSegment struct {
	Text string `json:"text"`
}

type execResult struct {
	Segments []execSegment `json:"segments"`
}

// NewExecRecognizer builds a subprocess-backed recognizer. The command gets
// the scratch audio path, language and VAD settings as flags and must print
// JSON with the detected segments on stdout.
func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, audioBytes []byte, language string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "voicecore_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	// Removal must hold on every exit path so scratch files never leak.
	defer os.Remove(file.Name())

	if _, err := file.Write(audioBytes); err != nil {
		file.Close()
		return "", fmt.Errorf("write scratch audio: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close scratch audio: %w", err)
	}

	if language == "" {
		language = r.cfg.Language
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if language != "" {
		cmdArgs = append(cmdArgs, "--language", language)
	}
	cmdArgs = append(cmdArgs, "--vad-min-silence-ms", strconv.Itoa(r.cfg.VADMinSilenceMS))
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}

	texts := make([]string, 0, len(resp.Segments))
	for _, segment := range resp.Segments {
		texts = append(texts, segment.Text)
	}
	return strings.TrimSpace(strings.Join(texts, " ")), nil
}
