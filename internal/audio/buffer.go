// Package audio holds decoded PCM buffers, the per-export mixing graph and
// the persistent preview tracks.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Buffer is decoded, interleaved float32 PCM.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

func NewBuffer(sampleRate, channels int, samples []float32) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm layout %d Hz x %d ch", sampleRate, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}
	return &Buffer{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil
}

func (b *Buffer) Frames() int64 {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return int64(len(b.Samples) / b.Channels)
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return framesToDuration(b.Frames(), b.SampleRate)
}

// At returns the sample of frame f for output channel ch, folding channels
// when the buffer layout differs from the output layout.
func (b *Buffer) At(f int64, ch int) float32 {
	if ch >= b.Channels {
		ch = b.Channels - 1
	}
	return b.Samples[int(f)*b.Channels+ch]
}

// DecodeF32LE reads raw little-endian float32 samples, the format ffmpeg
// emits with `-f f32le`.
func DecodeF32LE(r io.Reader, sampleRate, channels int) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	n := len(data) / 4
	n -= n % channels
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return NewBuffer(sampleRate, channels, samples)
}

// EncodeF32LE appends samples to dst in the ffmpeg f32le layout.
func EncodeF32LE(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

func durationToFrames(d time.Duration, sampleRate int) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d) * int64(sampleRate) / int64(time.Second)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
