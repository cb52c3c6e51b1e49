package tts

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/venomvoice/voicecore/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable on windows")
	}
	path := filepath.Join(t.TempDir(), "stub.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func execTTSConfig(command string) config.TTSConfig {
	cfg := config.Default().TTS
	cfg.Mode = "exec"
	cfg.Command = command
	return cfg
}

func TestSilenceEngine(t *testing.T) {
	engine := NewSilenceEngine(24000)
	samples, err := engine.Infer(context.Background(), InferRequest{Text: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 24000 {
		t.Fatalf("expected one second of silence, got %d samples", len(samples))
	}
}

func TestExecEngineDecodesPCM(t *testing.T) {
	// "AAAAAAAAAAA=" is eight zero bytes: two little-endian float32 zeros.
	script := writeScript(t, `cat > /dev/null; echo '{"pcm_base64":"AAAAAAAAAAA="}'`)
	engine, err := NewExecEngine(execTTSConfig(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	samples, err := engine.Infer(context.Background(), InferRequest{Text: "hello", Steps: 25, Guidance: 2.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 || samples[0] != 0 || samples[1] != 0 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestExecEngineForwardsRequest(t *testing.T) {
	// The stub copies its stdin to a capture file so the request payload is
	// observable after the call.
	capture := filepath.Join(t.TempDir(), "request.json")
	t.Setenv("TTS_STUB_CAPTURE", capture)
	script := writeScript(t, `cat > "$TTS_STUB_CAPTURE"; echo '{"pcm_base64":""}'`)
	cfg := execTTSConfig(script)
	cfg.CheckpointPath = "/models/metis.ckpt"
	engine, err := NewExecEngine(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.Infer(context.Background(), InferRequest{Text: "hello", Steps: 25, Guidance: 2.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(capture)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"text":"hello"`, `"n_timesteps":25`, `"cfg_scale":2.5`, `"checkpoint_path":"/models/metis.ckpt"`, `"sample_rate":24000`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in request, got %s", want, got)
		}
	}
}

func TestExecEngineDrainsTrailingOutput(t *testing.T) {
	// The stub keeps writing well past the pipe buffer after the response
	// line; Infer must still return instead of deadlocking on Wait.
	script := writeScript(t, `cat > /dev/null
echo '{"pcm_base64":"AAAAAAAAAAA="}'
dd if=/dev/zero bs=1024 count=1024 2>/dev/null | tr '\0' 'x'`)
	engine, err := NewExecEngine(execTTSConfig(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	samples, err := engine.Infer(context.Background(), InferRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected samples from first response line, got %d", len(samples))
	}
}

func TestExecEngineReportsError(t *testing.T) {
	script := writeScript(t, `cat > /dev/null; echo '{"error":"cuda out of memory"}'`)
	engine, err := NewExecEngine(execTTSConfig(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = engine.Infer(context.Background(), InferRequest{Text: "hello"})
	if err == nil || !strings.Contains(err.Error(), "cuda out of memory") {
		t.Fatalf("expected inference error, got %v", err)
	}
}

func TestExecEngineMisalignedPayload(t *testing.T) {
	// "AAAA" decodes to three bytes, not a whole float32.
	script := writeScript(t, `cat > /dev/null; echo '{"pcm_base64":"AAAA"}'`)
	engine, err := NewExecEngine(execTTSConfig(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.Infer(context.Background(), InferRequest{Text: "x"}); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestExecEngineNoOutput(t *testing.T) {
	script := writeScript(t, `cat > /dev/null`)
	engine, err := NewExecEngine(execTTSConfig(script))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.Infer(context.Background(), InferRequest{Text: "x"}); err == nil {
		t.Fatal("expected error for silent command")
	}
}

func TestNewEngineFallsBackToSilence(t *testing.T) {
	cfg := config.Default().TTS
	cfg.Mode = "mock"
	engine := NewEngine(cfg, testLogger())
	samples, err := engine.Infer(context.Background(), InferRequest{Text: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 24000 {
		t.Fatalf("expected silence fallback, got %d samples", len(samples))
	}

	cfg.Mode = "exec"
	cfg.Command = `broken "command`
	engine = NewEngine(cfg, testLogger())
	samples, err = engine.Infer(context.Background(), InferRequest{Text: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 24000 {
		t.Fatalf("expected silence fallback for unparsable command, got %d samples", len(samples))
	}
}
