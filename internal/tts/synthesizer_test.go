package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/venomvoice/voicecore/internal/audio"
	"github.com/venomvoice/voicecore/internal/config"
)

type countingEngine struct {
	calls []InferRequest
	fail  bool
}

func (e *countingEngine) Infer(_ context.Context, req InferRequest) ([]float32, error) {
	e.calls = append(e.calls, req)
	if e.fail {
		return nil, errors.New("model unavailable")
	}
	// One sample per input byte keeps chunk contributions distinguishable.
	return make([]float32, len(req.Text)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTTSConfig() config.TTSConfig {
	cfg := config.Default().TTS
	return cfg
}

func newTestSynthesizer(t *testing.T, engine Engine) *Synthesizer {
	t.Helper()
	encoder, err := audio.NewEncoder("")
	if err != nil {
		t.Fatalf("unexpected encoder error: %v", err)
	}
	synth, err := NewSynthesizer(testTTSConfig(), engine, encoder, testLogger())
	if err != nil {
		t.Fatalf("unexpected synthesizer error: %v", err)
	}
	return synth
}

func TestShortTextSingleInference(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	text := "Short sentence. With a delimiter inside."
	res := synth.Synthesize(context.Background(), text, false)

	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.Reason)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("expected one inference call, got %d", len(engine.calls))
	}
	if engine.calls[0].Text != text {
		t.Fatalf("expected unsegmented text, got %q", engine.calls[0].Text)
	}
	if engine.calls[0].Steps != 25 || engine.calls[0].Guidance != 2.5 {
		t.Fatalf("unexpected inference parameters: %+v", engine.calls[0])
	}
}

func TestLongTextSegmented(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	sentence := "This sentence pads the input well past the segmentation threshold. "
	text := strings.Repeat(sentence, 3)
	res := synth.Synthesize(context.Background(), text, false)

	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.Reason)
	}
	if len(engine.calls) != 3 {
		t.Fatalf("expected three inference calls, got %d", len(engine.calls))
	}

	total := 0
	for _, call := range engine.calls {
		total += len(call.Text)
	}
	if res.Audio.Len() != total {
		t.Fatalf("expected concatenated length %d, got %d", total, res.Audio.Len())
	}
}

func TestLongTextWithoutDelimiters(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	text := strings.Repeat("가", 150)
	res := synth.Synthesize(context.Background(), text, false)

	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.Reason)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("expected single inference for undelimited text, got %d", len(engine.calls))
	}
}

func TestRuneCountThreshold(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	// 100 three-byte runes: well past the threshold in bytes but exactly at
	// it in runes, so no segmentation happens.
	text := strings.Repeat("다", 100)
	synth.Synthesize(context.Background(), text, false)
	if len(engine.calls) != 1 {
		t.Fatalf("expected single inference at threshold, got %d", len(engine.calls))
	}
}

func TestInferenceFailureDegradesToSilence(t *testing.T) {
	engine := &countingEngine{fail: true}
	synth := newTestSynthesizer(t, engine)

	res := synth.Synthesize(context.Background(), "hello", false)

	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Reason == "" {
		t.Fatal("expected a degradation reason")
	}
	if res.Audio.Len() != 24000 {
		t.Fatalf("expected one second of silence, got %d samples", res.Audio.Len())
	}
	for _, sample := range res.Audio.Samples[:16] {
		if sample != 0 {
			t.Fatal("expected silent samples")
		}
	}
}

func TestMissingPromptVoiceDegrades(t *testing.T) {
	engine := &countingEngine{}
	cfg := testTTSConfig()
	cfg.PromptVoicePath = "/nonexistent/prompt.wav"
	encoder, err := audio.NewEncoder("")
	if err != nil {
		t.Fatalf("unexpected encoder error: %v", err)
	}
	synth, err := NewSynthesizer(cfg, engine, encoder, testLogger())
	if err != nil {
		t.Fatalf("unexpected synthesizer error: %v", err)
	}

	res := synth.Synthesize(context.Background(), "hello", false)
	if !res.Degraded {
		t.Fatal("expected degraded result for missing prompt voice")
	}
	if len(engine.calls) != 0 {
		t.Fatal("expected no inference when prompt voice is missing")
	}
}

func TestExecModeRequiresPromptVoice(t *testing.T) {
	engine := &countingEngine{}
	cfg := testTTSConfig()
	cfg.Mode = "exec"
	cfg.PromptVoicePath = ""
	encoder, err := audio.NewEncoder("")
	if err != nil {
		t.Fatalf("unexpected encoder error: %v", err)
	}
	synth, err := NewSynthesizer(cfg, engine, encoder, testLogger())
	if err != nil {
		t.Fatalf("unexpected synthesizer error: %v", err)
	}

	res := synth.Synthesize(context.Background(), "hello", false)
	if !res.Degraded {
		t.Fatal("expected degraded result for unset prompt voice in exec mode")
	}
	if len(engine.calls) != 0 {
		t.Fatal("expected no inference without a prompt voice")
	}
}

func TestExecModeWithPromptVoiceSynthesizes(t *testing.T) {
	engine := &countingEngine{}
	cfg := testTTSConfig()
	cfg.Mode = "exec"
	cfg.PromptVoicePath = filepath.Join(t.TempDir(), "prompt.wav")
	if err := os.WriteFile(cfg.PromptVoicePath, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("writing prompt voice: %v", err)
	}
	encoder, err := audio.NewEncoder("")
	if err != nil {
		t.Fatalf("unexpected encoder error: %v", err)
	}
	synth, err := NewSynthesizer(cfg, engine, encoder, testLogger())
	if err != nil {
		t.Fatalf("unexpected synthesizer error: %v", err)
	}

	res := synth.Synthesize(context.Background(), "hello", false)
	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.Reason)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("expected one inference call, got %d", len(engine.calls))
	}
	if engine.calls[0].PromptSpeechPath != cfg.PromptVoicePath {
		t.Fatalf("expected prompt path forwarded, got %q", engine.calls[0].PromptSpeechPath)
	}
}

func TestCacheHitSkipsInference(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	synth.Synthesize(context.Background(), "cached phrase", true)
	synth.Synthesize(context.Background(), "cached phrase", true)

	if len(engine.calls) != 1 {
		t.Fatalf("expected one inference across cached calls, got %d", len(engine.calls))
	}
	length, hits, misses := synth.CacheStats()
	if length != 1 || hits != 1 || misses != 1 {
		t.Fatalf("unexpected cache stats: len=%d hits=%d misses=%d", length, hits, misses)
	}
}

func TestCacheBypass(t *testing.T) {
	engine := &countingEngine{}
	synth := newTestSynthesizer(t, engine)

	synth.Synthesize(context.Background(), "bypassed", false)
	synth.Synthesize(context.Background(), "bypassed", false)

	if len(engine.calls) != 2 {
		t.Fatalf("expected two inference calls when bypassing cache, got %d", len(engine.calls))
	}
	if length, _, _ := synth.CacheStats(); length != 0 {
		t.Fatalf("expected empty cache after bypassed calls, got %d entries", length)
	}
}
