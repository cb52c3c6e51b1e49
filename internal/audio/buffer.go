// Package audio holds the in-memory PCM representation shared by the
// synthesis pipeline and its encoding adapters.
package audio

import "time"

// Buffer is an owned sequence of PCM float samples at a fixed sample rate.
// Producers hand out fresh buffers; holders must not mutate the samples.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Silence returns a buffer of n zero samples.
func Silence(n, sampleRate int) *Buffer {
	return &Buffer{Samples: make([]float32, n), SampleRate: sampleRate}
}

// Empty returns a zero-length buffer at the given rate.
func Empty(sampleRate int) *Buffer {
	return &Buffer{Samples: []float32{}, SampleRate: sampleRate}
}

// Concat joins buffers in order into one fresh buffer.
func Concat(sampleRate int, parts ...*Buffer) *Buffer {
	total := 0
	for _, p := range parts {
		total += len(p.Samples)
	}
	out := make([]float32, 0, total)
	for _, p := range parts {
		out = append(out, p.Samples...)
	}
	return &Buffer{Samples: out, SampleRate: sampleRate}
}

// Clone returns an independent copy.
func (b *Buffer) Clone() *Buffer {
	samples := make([]float32, len(b.Samples))
	copy(samples, b.Samples)
	return &Buffer{Samples: samples, SampleRate: b.SampleRate}
}

// Len reports the sample count.
func (b *Buffer) Len() int { return len(b.Samples) }

// Duration reports the playback time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}
