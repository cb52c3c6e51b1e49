package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// ErrUnsupportedFormat is returned for container formats the encoder cannot
// produce, either because the format is unknown or because no external
// encoder command is configured.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const wavBitDepth = 16

// WriteWAV encodes the buffer as 16-bit PCM WAV.
func WriteWAV(w io.WriteSeeker, b *Buffer) error {
	intBuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(b.Samples)),
	}
	for i, s := range b.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		intBuf.Data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(w, b.SampleRate, wavBitDepth, 1, 1)
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile encodes the buffer to a WAV file at path.
func WriteWAVFile(path string, b *Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	if err := WriteWAV(file, b); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// WAVBytes encodes the buffer to an in-memory WAV container.
func WAVBytes(b *Buffer) ([]byte, error) {
	ws := &seekBuffer{}
	if err := WriteWAV(ws, b); err != nil {
		return nil, err
	}
	return ws.data, nil
}

// Encoder turns buffers into encoded container bytes. WAV is produced
// in-process; other formats are delegated to an external encoder command
// that reads WAV on stdin and writes the container named by its final
// argument on stdout.
type Encoder struct {
	cmd []string
}

// NewEncoder parses the external encoder command. An empty command yields an
// encoder that only supports WAV.
func NewEncoder(command string) (*Encoder, error) {
	if command == "" {
		return &Encoder{}, nil
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse encoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("encoder command empty")
	}
	return &Encoder{cmd: args}, nil
}

// Encode returns the buffer in the requested container format.
func (e *Encoder) Encode(ctx context.Context, b *Buffer, format string) ([]byte, error) {
	switch format {
	case "wav":
		return WAVBytes(b)
	case "ogg", "flac":
		if len(e.cmd) == 0 {
			return nil, fmt.Errorf("%w: %s (no encoder command configured)", ErrUnsupportedFormat, format)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	wavData, err := WAVBytes(b)
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, e.cmd[1:]...), format)
	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	cmd.Stdin = bytes.NewReader(wavData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("encoder command failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// seekBuffer adapts an in-memory byte slice to io.WriteSeeker for the wav
// encoder, which rewrites the RIFF header after the data chunk.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if extra := s.pos + len(p) - len(s.data); extra > 0 {
		s.data = append(s.data, make([]byte, extra)...)
	}
	copy(s.data[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = s.pos + int(offset)
	case io.SeekEnd:
		next = len(s.data) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	s.pos = next
	return int64(next), nil
}
