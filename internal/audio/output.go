package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// ErrPlaybackBlocked means the runtime refused to start audible playback
// (no output device, player binary missing). The caller should clear its
// playing flag and let the user retry.
var ErrPlaybackBlocked = errors.New("playback blocked")

// Output receives mixed f32le PCM for audible playback.
type Output interface {
	Write(samples []float32) error
	Close() error
}

// OutputFactory opens an output for the given PCM layout.
type OutputFactory func(sampleRate, channels int) (Output, error)

// Discard is an output that drops every sample. Headless previews use it.
func Discard(int, int) (Output, error) { return discard{}, nil }

type discard struct{}

func (discard) Write([]float32) error { return nil }
func (discard) Close() error          { return nil }

// FFplay returns a factory that streams PCM into an ffplay process.
func FFplay(bin string) OutputFactory {
	return func(sampleRate, channels int) (Output, error) {
		return newFFplayOutput(bin, sampleRate, channels)
	}
}

type ffplayOutput struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	buf    []byte
}

func ffplayArgs(sampleRate, channels int) []string {
	return []string{
		"-nodisp", "-autoexit", "-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
	}
}

func newFFplayOutput(bin string, sampleRate, channels int) (*ffplayOutput, error) {
	if bin == "" {
		bin = "ffplay"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, bin, ffplayArgs(sampleRate, channels)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
	}
	return &ffplayOutput{cmd: cmd, stdin: stdin, cancel: cancel}, nil
}

func (o *ffplayOutput) Write(samples []float32) error {
	o.buf = EncodeF32LE(o.buf[:0], samples)
	_, err := o.stdin.Write(o.buf)
	return err
}

func (o *ffplayOutput) Close() error {
	o.stdin.Close()
	o.cancel()
	_ = o.cmd.Wait()
	return nil
}
