package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ivlev/storyreel/internal/audio"
)

func decodeArgs(sampleRate, channels int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	}
}

// decodeAudio converts any container ffmpeg understands into interleaved
// float32 PCM at the requested layout.
func decodeAudio(ctx context.Context, ffmpeg string, data []byte, sampleRate, channels int) (*audio.Buffer, error) {
	cmd := exec.CommandContext(ctx, ffmpeg, decodeArgs(sampleRate, channels)...)
	cmd.Stdin = bytes.NewReader(data)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode audio: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	buf, err := audio.DecodeF32LE(&out, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("decode audio: no samples")
	}
	return buf, nil
}
