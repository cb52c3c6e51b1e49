package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/venomvoice/voicecore/internal/config"
)

// InferRequest carries one synthesis call to the model.
type InferRequest struct {
	PromptSpeechPath string
	PromptText       string
	Text             string
	Steps            int
	Guidance         float64
}

// Engine is the contract the synthesizer depends on. The external model is
// supplied through this interface; there is no runtime path discovery.
type Engine interface {
	Infer(ctx context.Context, req InferRequest) ([]float32, error)
}

type execEngine struct {
	cmd        []string
	cfg        config.TTSConfig
	mu         sync.Mutex
	sampleRate int
}

type execInferRequest struct {
	Text             string  `json:"text"`
	PromptSpeechPath string  `json:"prompt_speech_path"`
	PromptText       string  `json:"prompt_text"`
	NTimesteps       int     `json:"n_timesteps"`
	CFGScale         float64 `json:"cfg_scale"`
	CheckpointPath   string  `json:"checkpoint_path"`
	ConfigPath       string  `json:"config_path"`
	SampleRate       int     `json:"sample_rate"`
}

type execInferResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Error     string `json:"error,omitempty"`
}

// NewExecEngine builds a subprocess-backed engine. The command receives one
// JSON request on stdin and must answer with one JSON line on stdout carrying
// base64 little-endian float32 samples.
func NewExecEngine(cfg config.TTSConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}
	return &execEngine{cmd: args, cfg: cfg, sampleRate: cfg.SampleRate}, nil
}

func (e *execEngine) Infer(ctx context.Context, req InferRequest) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execInferRequest{
		Text:             req.Text,
		PromptSpeechPath: req.PromptSpeechPath,
		PromptText:       req.PromptText,
		NTimesteps:       req.Steps,
		CFGScale:         req.Guidance,
		CheckpointPath:   e.cfg.CheckpointPath,
		ConfigPath:       e.cfg.ConfigPath,
		SampleRate:       e.sampleRate,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts command: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	var resp execInferResponse
	decoded := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("decode tts response: %w", err)
		}
		decoded = true
		break
	}
	// The process may keep writing after the response line; drain so Wait
	// cannot block on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	if !decoded {
		return nil, errors.New("tts command produced no response")
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("tts inference error: %s", resp.Error)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, fmt.Errorf("decode pcm payload: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, errors.New("pcm payload not float32 aligned")
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// silenceSamples is one second of output at the synthesis rate.
const silenceSamples = 24000

type silenceEngine struct {
	sampleRate int
}

// NewSilenceEngine returns the no-op stand-in used when no working model is
// available. It always produces one second of silence so the serving layer
// stays reachable.
func NewSilenceEngine(sampleRate int) Engine {
	return &silenceEngine{sampleRate: sampleRate}
}

func (s *silenceEngine) Infer(_ context.Context, _ InferRequest) ([]float32, error) {
	return make([]float32, silenceSamples), nil
}

// NewEngine selects the engine for the configured mode. Unusable
// configuration degrades to the silence engine instead of failing startup.
func NewEngine(cfg config.TTSConfig, logger *slog.Logger) Engine {
	log := logger.With(slog.String("component", "tts-engine"))

	if cfg.Mode != "exec" {
		return NewSilenceEngine(cfg.SampleRate)
	}

	if cfg.CheckpointPath != "" {
		if _, err := os.Stat(cfg.CheckpointPath); err != nil {
			log.Warn("model checkpoint missing, synthesis will degrade to silence",
				slog.String("path", cfg.CheckpointPath))
		}
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			log.Warn("model config missing, synthesis will degrade to silence",
				slog.String("path", cfg.ConfigPath))
		}
	}

	engine, err := NewExecEngine(cfg)
	if err != nil {
		log.Warn("tts engine unavailable, using silence fallback", slogError(err))
		return NewSilenceEngine(cfg.SampleRate)
	}
	return engine
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
