package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/clock"
)

// CaptureSetupError means the capture stream or recorder could not be
// created. It is fatal to the export session.
type CaptureSetupError struct {
	Stage string
	Err   error
}

func (e *CaptureSetupError) Error() string {
	return fmt.Sprintf("capture setup failed at %s: %v", e.Stage, e.Err)
}

func (e *CaptureSetupError) Unwrap() error { return e.Err }

var ErrNotRecording = errors.New("recorder is not running")

// Recorder is one continuous capture session.
type Recorder interface {
	Start(ctx context.Context) error
	// WriteFrame submits the current surface. The recorder repeats or
	// drops frames so the encoded video follows wall-clock time.
	WriteFrame(frame *image.RGBA) error
	// Stop finalizes the stream and returns the encoded blob.
	Stop() ([]byte, error)
}

// AudioStream writes the mixed session audio as f32le in real time. The
// recorder anchors its clock to the video start.
type AudioStream interface {
	Anchor(at time.Time)
	Stream(ctx context.Context, w io.Writer, interval time.Duration) error
}

type RecorderOptions struct {
	FFmpeg     string
	Width      int
	Height     int
	FPS        int
	Quality    int
	Container  Container
	SampleRate int
	Channels   int
	Audio      AudioStream
	Clock      clock.Clock
	Log        *zap.Logger
}

// FFmpegRecorder feeds rawvideo on stdin and graph audio on fd 3 into one
// ffmpeg process and collects the encoded output from stdout.
type FFmpegRecorder struct {
	opts RecorderOptions
	log  *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   bytes.Buffer
	group    *errgroup.Group
	stopPump context.CancelFunc
	started  time.Time
	written  int64
	scratch  *image.RGBA
	running  bool

	// chunkMu is separate from mu so the output reader never waits on a
	// frame write blocked by a full ffmpeg input pipe.
	chunkMu sync.Mutex
	chunks  [][]byte
}

func NewFFmpegRecorder(opts RecorderOptions) *FFmpegRecorder {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &FFmpegRecorder{opts: opts, log: log}
}

func (r *FFmpegRecorder) args() []string {
	o := r.opts
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-thread_queue_size", "512",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", o.Width, o.Height),
		"-r", strconv.Itoa(o.FPS),
		"-i", "pipe:0",
	}
	if o.Audio != nil {
		args = append(args,
			"-thread_queue_size", "512",
			"-f", "f32le",
			"-ar", strconv.Itoa(o.SampleRate),
			"-ac", strconv.Itoa(o.Channels),
			"-i", "pipe:3",
		)
	}

	args = append(args, "-map", "0:v")
	if o.Audio != nil {
		args = append(args, "-map", "1:a")
	}
	args = append(args, "-c:v", o.Container.VideoCodec, "-pix_fmt", "yuv420p")
	args = append(args, qualityArgs(o.Container.VideoCodec, o.Quality)...)
	if o.Audio != nil {
		args = append(args, "-c:a", o.Container.AudioCodec)
	}
	args = append(args, o.Container.ExtraArgs...)
	return append(args, "-f", o.Container.Format, "pipe:1")
}

func (r *FFmpegRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, r.opts.FFmpeg, r.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &CaptureSetupError{Stage: "video pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &CaptureSetupError{Stage: "output pipe", Err: err}
	}
	cmd.Stderr = &r.stderr

	var audioR, audioW *os.File
	if r.opts.Audio != nil {
		audioR, audioW, err = os.Pipe()
		if err != nil {
			return &CaptureSetupError{Stage: "audio pipe", Err: err}
		}
		cmd.ExtraFiles = []*os.File{audioR}
	}

	if err := cmd.Start(); err != nil {
		if audioR != nil {
			audioR.Close()
			audioW.Close()
		}
		return &CaptureSetupError{Stage: "start ffmpeg", Err: err}
	}
	if audioR != nil {
		audioR.Close()
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		buf := make([]byte, 64<<10)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				r.chunkMu.Lock()
				r.chunks = append(r.chunks, chunk)
				r.chunkMu.Unlock()
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read encoded output: %w", err)
			}
		}
	})

	started := r.opts.Clock.Now()
	pumpCtx, stopPump := context.WithCancel(gctx)
	if audioW != nil {
		r.opts.Audio.Anchor(started)
		group.Go(func() error {
			defer audioW.Close()
			return r.opts.Audio.Stream(pumpCtx, audioW, 20*time.Millisecond)
		})
	}

	r.cmd = cmd
	r.stdin = stdin
	r.group = group
	r.stopPump = stopPump
	r.started = started
	r.written = 0
	r.running = true
	r.log.Info("recorder started",
		zap.String("container", r.opts.Container.Name),
		zap.Int("width", r.opts.Width),
		zap.Int("height", r.opts.Height),
		zap.Int("fps", r.opts.FPS))
	return nil
}

// due is the number of frames the encoded video should hold by now.
func (r *FFmpegRecorder) due() int64 {
	elapsed := r.opts.Clock.Now().Sub(r.started)
	return int64(elapsed*time.Duration(r.opts.FPS)/time.Second) + 1
}

func (r *FFmpegRecorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRecording
	}

	n := r.due() - r.written
	if n <= 0 {
		return nil
	}
	pix := r.rawRGBA(frame)
	for i := int64(0); i < n; i++ {
		if _, err := r.stdin.Write(pix); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	r.written += n
	return nil
}

func (r *FFmpegRecorder) rawRGBA(frame *image.RGBA) []byte {
	want := image.Rect(0, 0, r.opts.Width, r.opts.Height)
	if frame.Rect == want && frame.Stride == want.Dx()*4 {
		return frame.Pix
	}
	if r.scratch == nil {
		r.scratch = image.NewRGBA(want)
	}
	draw.Draw(r.scratch, want, frame, frame.Rect.Min, draw.Src)
	return r.scratch.Pix
}

func (r *FFmpegRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.running = false
	cmd, stdin, group, stopPump := r.cmd, r.stdin, r.group, r.stopPump
	r.mu.Unlock()

	stopPump()
	stdin.Close()
	groupErr := group.Wait()
	waitErr := cmd.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(r.stderr.String()))
	}
	if groupErr != nil {
		return nil, groupErr
	}

	r.chunkMu.Lock()
	blob := bytes.Join(r.chunks, nil)
	r.chunks = nil
	r.chunkMu.Unlock()
	r.log.Info("recorder stopped",
		zap.Int64("frames", r.written),
		zap.Int("bytes", len(blob)))
	return blob, nil
}
