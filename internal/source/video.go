package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/system"
)

// LoopVideo is a muted short clip that loops while playing. Loading reads
// metadata only; frames are decoded by ffmpeg in real time between Play and
// Pause.
type LoopVideo struct {
	ffmpeg string
	uri    string
	size   image.Point
	log    *zap.Logger

	mu     sync.Mutex
	frame  *image.RGBA
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *MediaLoader) loadLoopVideo(ctx context.Context, uri string) (*LoopVideo, error) {
	info, err := system.Probe(ctx, l.opts.FFprobe, uri)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%s has no video stream", uri)
	}
	return &LoopVideo{
		ffmpeg: l.opts.FFmpeg,
		uri:    uri,
		size:   image.Pt(info.Width, info.Height),
		log:    l.log,
		frame:  image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
	}, nil
}

func (v *LoopVideo) Size() image.Point { return v.size }

func (v *LoopVideo) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

func loopArgs(uri string, w, h int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-re",
		"-stream_loop", "-1",
		"-i", uri,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", strconv.Itoa(w) + "x" + strconv.Itoa(h),
		"pipe:1",
	}
}

// Play starts the decoder. It is a no-op while already playing.
func (v *LoopVideo) Play(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, v.ffmpeg, loopArgs(v.uri, v.size.X, v.size.Y)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start loop decoder: %w", err)
	}

	v.cancel = cancel
	v.done = make(chan struct{})
	go v.decode(cmd, stdout, v.done)
	return nil
}

func (v *LoopVideo) decode(cmd *exec.Cmd, r io.Reader, done chan struct{}) {
	defer close(done)
	frameSize := v.size.X * v.size.Y * 4
	for {
		next := image.NewRGBA(image.Rect(0, 0, v.size.X, v.size.Y))
		if _, err := io.ReadFull(r, next.Pix[:frameSize]); err != nil {
			break
		}
		v.mu.Lock()
		v.frame = next
		v.mu.Unlock()
	}
	if err := cmd.Wait(); err != nil {
		v.log.Debug("loop decoder exited", zap.String("uri", v.uri), zap.Error(err))
	}
}

// Pause stops decoding and keeps the last frame on screen.
func (v *LoopVideo) Pause() {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (v *LoopVideo) Close() error {
	v.Pause()
	return nil
}
