// Package export records a list of ready scenes into one encoded blob in
// real time: each scene is composited frame by frame while its narration
// plays through a per-session mixing graph.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/video"
)

var (
	ErrEmptyInput       = errors.New("no ready scenes to export")
	ErrExportInProgress = errors.New("an export is already running")
)

// Renderer composites one frame.
type Renderer interface {
	Render(dst *image.RGBA, visual image.Image, subtitle string) error
}

type RecorderFactory func(opts video.RecorderOptions) video.Recorder

type ProbeFunc func(ctx context.Context) (video.Prober, error)

type Options struct {
	FFmpeg       string
	FPS          int
	Quality      int
	VideoEncoder string
	SampleRate   int
	Channels     int
	Padding      time.Duration
	Nominal      time.Duration

	// Music is mixed under the narration when set.
	MusicURI    string
	MusicVolume float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FFmpeg:       cfg.Paths.FFmpeg,
		FPS:          cfg.Video.FPS,
		Quality:      cfg.Video.Quality,
		VideoEncoder: cfg.Video.VideoEncoder,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
		Padding:      cfg.Audio.Padding,
		Nominal:      cfg.Audio.NominalDuration,
		MusicVolume:  cfg.Audio.MusicVolume,
	}
}

type SceneReport struct {
	Index   int
	ID      string
	Skipped bool
	Err     error
	Visible time.Duration
	Shown   time.Duration
	Frames  int
}

type Result struct {
	SessionID string
	Blob      []byte
	Container video.Container
	Width     int
	Height    int
	Duration  time.Duration
	Scenes    []SceneReport
	Stats     system.Stats
}

// Pipeline runs one export at a time.
type Pipeline struct {
	opts        Options
	loader      source.Loader
	renderer    Renderer
	clock       clock.Clock
	display     clock.Display
	probe       ProbeFunc
	newRecorder RecorderFactory
	stats       func() system.Stats
	log         *zap.Logger

	busy atomic.Bool
}

type Option func(*Pipeline)

// WithTime replaces wall-clock time and the frame cadence.
func WithTime(c clock.Clock, d clock.Display) Option {
	return func(p *Pipeline) { p.clock, p.display = c, d }
}

func WithRecorderFactory(f RecorderFactory) Option {
	return func(p *Pipeline) { p.newRecorder = f }
}

func WithProbe(f ProbeFunc) Option {
	return func(p *Pipeline) { p.probe = f }
}

func WithStats(f func() system.Stats) Option {
	return func(p *Pipeline) { p.stats = f }
}

func New(opts Options, loader source.Loader, renderer Renderer, log *zap.Logger, options ...Option) *Pipeline {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.Nominal <= 0 {
		opts.Nominal = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pipeline{
		opts:     opts,
		loader:   loader,
		renderer: renderer,
		clock:    clock.System{},
		display:  clock.System{Interval: time.Second / time.Duration(opts.FPS)},
		probe: func(ctx context.Context) (video.Prober, error) {
			return video.ProbeCapabilities(ctx, opts.FFmpeg)
		},
		newRecorder: func(ro video.RecorderOptions) video.Recorder {
			return video.NewFFmpegRecorder(ro)
		},
		stats: system.CurrentStats,
		log:   log,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *Pipeline) frameInterval() time.Duration {
	return time.Second / time.Duration(p.opts.FPS)
}

// Export records scenes in order. The caller filters to ready scenes.
// Scenes whose assets fail to load are skipped and reported; the call
// fails only for empty input, capture setup failures, recorder failures
// and cancellation.
func (p *Pipeline) Export(ctx context.Context, scenes []scene.Scene, aspect config.AspectRatio) (*Result, error) {
	if len(scenes) == 0 {
		return nil, ErrEmptyInput
	}
	width, height, err := config.Dimensions(aspect)
	if err != nil {
		return nil, err
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}
	defer p.busy.Store(false)

	s := &session{
		p:      p,
		id:     uuid.NewString(),
		width:  width,
		height: height,
	}
	s.log = p.log.With(zap.String("session", s.id))
	return s.run(ctx, scenes)
}

type session struct {
	p      *Pipeline
	id     string
	width  int
	height int
	log    *zap.Logger

	surface *image.RGBA
	graph   *audio.Graph
	rec     video.Recorder
	prevEnd time.Time
}

func (s *session) run(ctx context.Context, scenes []scene.Scene) (*Result, error) {
	p := s.p
	s.log.Info("export started",
		zap.Int("scenes", len(scenes)),
		zap.Int("width", s.width),
		zap.Int("height", s.height))

	prober, err := p.probe(ctx)
	if err != nil {
		return nil, &video.CaptureSetupError{Stage: "probe runtime", Err: err}
	}
	container, supported := video.Negotiate(prober, video.Candidates, p.opts.VideoEncoder)
	if !supported {
		s.log.Warn("no candidate container supported, using default", zap.String("container", container.Name))
	}

	rect := image.Rect(0, 0, s.width, s.height)
	s.surface = system.GetImage(rect)
	defer system.PutImage(s.surface)
	if err := p.renderer.Render(s.surface, nil, ""); err != nil {
		return nil, &video.CaptureSetupError{Stage: "surface", Err: err}
	}

	s.graph = audio.NewGraph(p.opts.SampleRate, p.opts.Channels, p.clock.Now)
	defer s.graph.Close()

	s.rec = p.newRecorder(video.RecorderOptions{
		FFmpeg:     p.opts.FFmpeg,
		Width:      s.width,
		Height:     s.height,
		FPS:        p.opts.FPS,
		Quality:    p.opts.Quality,
		Container:  container,
		SampleRate: p.opts.SampleRate,
		Channels:   p.opts.Channels,
		Audio:      s.graph,
		Clock:      p.clock,
		Log:        s.log.Named("recorder"),
	})
	if s.rec == nil {
		return nil, &video.CaptureSetupError{Stage: "recorder", Err: errors.New("no recorder")}
	}
	if err := s.rec.Start(ctx); err != nil {
		var setupErr *video.CaptureSetupError
		if errors.As(err, &setupErr) {
			return nil, err
		}
		return nil, &video.CaptureSetupError{Stage: "start recorder", Err: err}
	}
	if err := s.rec.WriteFrame(s.surface); err != nil {
		s.abort()
		return nil, &video.CaptureSetupError{Stage: "initial frame", Err: err}
	}
	started := p.clock.Now()

	music := s.startMusic(ctx)

	reports := make([]SceneReport, 0, len(scenes))
	for i, sc := range scenes {
		if err := ctx.Err(); err != nil {
			s.abort()
			return nil, err
		}
		rep, err := s.renderScene(ctx, i, sc)
		reports = append(reports, rep)
		if err != nil {
			s.abort()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
	}

	if music != nil {
		music.Stop()
	}
	duration := p.clock.Now().Sub(started)

	blob, err := s.rec.Stop()
	if err != nil {
		return nil, fmt.Errorf("finalize recording: %w", err)
	}

	res := &Result{
		SessionID: s.id,
		Blob:      blob,
		Container: container,
		Width:     s.width,
		Height:    s.height,
		Duration:  duration,
		Scenes:    reports,
		Stats:     p.stats(),
	}
	s.log.Info("export finished",
		zap.Duration("duration", duration),
		zap.Int("bytes", len(blob)),
		zap.Int("skipped", res.Skipped()),
		zap.String("container", container.Name))
	return res, nil
}

func (s *session) abort() {
	if _, err := s.rec.Stop(); err != nil {
		s.log.Debug("recorder stopped during abort", zap.Error(err))
	}
}

func (s *session) startMusic(ctx context.Context) *audio.BufferSource {
	p := s.p
	if p.opts.MusicURI == "" {
		return nil
	}
	buf, err := p.loader.LoadAudio(ctx, p.opts.MusicURI)
	if err != nil {
		s.log.Warn("background music unavailable", zap.Error(err))
		return nil
	}
	src, err := s.graph.NewBufferSource(buf, p.opts.MusicVolume, true)
	if err == nil {
		err = src.Start(s.graph.CurrentTime())
	}
	if err != nil {
		s.log.Warn("background music not mixed", zap.Error(err))
		return nil
	}
	return src
}

// renderScene returns an error only for failures that end the session.
func (s *session) renderScene(ctx context.Context, i int, sc scene.Scene) (SceneReport, error) {
	p := s.p
	rep := SceneReport{Index: i, ID: sc.ID}
	log := s.log.With(zap.Int("scene", i), zap.String("id", sc.ID))

	vis, err := p.loader.LoadVisual(ctx, sc.Visual)
	if err != nil {
		return s.skip(log, rep, "visual", err), nil
	}
	defer vis.Close()

	var narration *audio.Buffer
	if sc.HasAudio() {
		narration, err = p.loader.LoadAudio(ctx, sc.AudioURI)
		if err != nil {
			return s.skip(log, rep, "audio", err), nil
		}
	}
	rep.Visible = clock.VisibleDuration(narration.Duration(), narration != nil, p.opts.Padding, p.opts.Nominal)

	if sc.Visual.Kind == scene.VisualVideo {
		if err := vis.Play(ctx); err != nil {
			log.Warn("loop video did not start", zap.Error(err))
		}
	}
	defer vis.Pause()

	var voice *audio.BufferSource
	if narration != nil {
		voice, err = s.graph.NewBufferSource(narration, 1, false)
		if err == nil {
			err = voice.Start(s.graph.CurrentTime())
		}
		if err != nil {
			return s.skip(log, rep, "audio", err), nil
		}
	}
	defer func() {
		if voice != nil {
			voice.Stop()
		}
	}()

	// A scene that follows directly absorbs the previous scene's last-frame
	// overshoot so boundaries stay on the cumulative timeline.
	start := p.clock.Now()
	if !s.prevEnd.IsZero() && start.Sub(s.prevEnd) < p.frameInterval() {
		start = s.prevEnd
	}
	end := start.Add(rep.Visible)

	frames := p.display.Frames()
	defer frames.Stop()
	for {
		now, err := frames.Next(ctx)
		if err != nil {
			return rep, err
		}
		elapsed := now.Sub(start)
		if elapsed >= rep.Visible {
			rep.Shown = elapsed
			break
		}
		if err := p.renderer.Render(s.surface, vis.Frame(), sc.Narration); err != nil {
			return rep, fmt.Errorf("render scene %d: %w", i, err)
		}
		if err := s.rec.WriteFrame(s.surface); err != nil {
			return rep, fmt.Errorf("record scene %d: %w", i, err)
		}
		rep.Frames++
	}

	if voice != nil {
		voice.Stop()
	}
	s.prevEnd = end
	log.Debug("scene recorded",
		zap.Duration("visible", rep.Visible),
		zap.Duration("shown", rep.Shown),
		zap.Int("frames", rep.Frames))
	return rep, nil
}

func (s *session) skip(log *zap.Logger, rep SceneReport, asset string, err error) SceneReport {
	log.Warn("scene skipped", zap.String("asset", asset), zap.Error(err))
	rep.Skipped = true
	rep.Err = err
	return rep
}

func (r *Result) Skipped() int {
	n := 0
	for _, s := range r.Scenes {
		if s.Skipped {
			n++
		}
	}
	return n
}
