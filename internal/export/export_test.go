package export

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/video"
)

const fps = 30

var frame = time.Second / fps

type fakeLoader struct {
	audio   map[string]time.Duration
	failVis map[string]bool
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (l *fakeLoader) LoadVisual(ctx context.Context, v scene.Visual) (source.Visual, error) {
	if l.block != nil {
		l.once.Do(func() { close(l.entered) })
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.failVis[v.URI] {
		return nil, &source.AssetLoadError{Asset: "visual", URI: v.URI, Err: errors.New("decode failed")}
	}
	return source.NewStill(image.NewRGBA(image.Rect(0, 0, 64, 48))), nil
}

func (l *fakeLoader) LoadAudio(_ context.Context, uri string) (*audio.Buffer, error) {
	d, ok := l.audio[uri]
	if !ok {
		return nil, &source.AssetLoadError{Asset: "audio", URI: uri, Err: errors.New("not found")}
	}
	frames := int(d / time.Millisecond)
	return audio.NewBuffer(1000, 1, make([]float32, frames))
}

type fakeRenderer struct{ calls int }

func (r *fakeRenderer) Render(*image.RGBA, image.Image, string) error {
	r.calls++
	return nil
}

type fakeRecorder struct {
	opts    video.RecorderOptions
	started bool
	stopped bool
	frames  int
	size    image.Rectangle
}

func (r *fakeRecorder) Start(context.Context) error {
	r.started = true
	return nil
}

func (r *fakeRecorder) WriteFrame(f *image.RGBA) error {
	r.frames++
	r.size = f.Rect
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	r.stopped = true
	return []byte("encoded"), nil
}

type harness struct {
	clk      *clock.Manual
	loader   *fakeLoader
	recorder *fakeRecorder
	created  int
	graph    video.AudioStream
	pipeline *Pipeline
}

func newHarness(loader *fakeLoader) *harness {
	h := &harness{clk: clock.NewManual(time.Unix(1000, 0), frame), loader: loader}
	caps := video.Capabilities{
		Encoders: map[string]bool{"libx264": true, "aac": true},
		Muxers:   map[string]bool{"mp4": true},
	}
	h.pipeline = New(Options{
		FPS:        fps,
		SampleRate: 1000,
		Channels:   1,
		Padding:    500 * time.Millisecond,
		Nominal:    5 * time.Second,
	}, loader, &fakeRenderer{}, nil,
		WithTime(h.clk, h.clk),
		WithProbe(func(context.Context) (video.Prober, error) { return caps, nil }),
		WithStats(func() system.Stats { return system.Stats{} }),
		WithRecorderFactory(func(o video.RecorderOptions) video.Recorder {
			h.created++
			h.graph = o.Audio
			h.recorder = &fakeRecorder{opts: o}
			return h.recorder
		}),
	)
	return h
}

func ready(id, audioURI string) scene.Scene {
	return scene.Scene{
		ID:       id,
		Visual:   scene.Visual{Kind: scene.VisualImage, URI: id + ".png"},
		AudioURI: audioURI,
		Status:   scene.StatusCompleted,
	}
}

func within(got, want, tol time.Duration) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestExportThreeScenes(t *testing.T) {
	h := newHarness(&fakeLoader{audio: map[string]time.Duration{
		"a.mp3": 3 * time.Second,
		"c.mp3": 2 * time.Second,
	}})
	scenes := []scene.Scene{ready("a", "a.mp3"), ready("b", ""), ready("c", "c.mp3")}

	res, err := h.pipeline.Export(context.Background(), scenes, config.Landscape)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if string(res.Blob) != "encoded" || h.created != 1 {
		t.Errorf("Expected one recorder and one blob, created=%d blob=%q", h.created, res.Blob)
	}
	if !within(res.Duration, 11*time.Second, frame) {
		t.Errorf("Expected ~11s capture, got %v", res.Duration)
	}

	wantVisible := []time.Duration{3500 * time.Millisecond, 5 * time.Second, 2500 * time.Millisecond}
	for i, rep := range res.Scenes {
		if rep.Skipped {
			t.Errorf("Scene %d unexpectedly skipped: %v", i, rep.Err)
		}
		if rep.Visible != wantVisible[i] {
			t.Errorf("Scene %d visible %v, want %v", i, rep.Visible, wantVisible[i])
		}
	}
	if res.Container.Name != "mp4-h264" {
		t.Errorf("Expected negotiated mp4, got %s", res.Container.Name)
	}
	if !h.recorder.stopped || h.recorder.frames < 320 {
		t.Errorf("Recorder stopped=%v frames=%d", h.recorder.stopped, h.recorder.frames)
	}
	if !strings.Contains(res.Report("test"), "3 recorded, 0 skipped") {
		t.Errorf("Unexpected report:\n%s", res.Report("test"))
	}
}

func TestNarrationStopsBeforeNextScene(t *testing.T) {
	h := newHarness(&fakeLoader{audio: map[string]time.Duration{
		"1.mp3": 1200 * time.Millisecond,
		"2.mp3": 3 * time.Second,
		"3.mp3": 700 * time.Millisecond,
		"4.mp3": 2 * time.Second,
	}})
	scenes := []scene.Scene{ready("s1", "1.mp3"), ready("s2", "2.mp3"), ready("s3", "3.mp3"), ready("s4", "4.mp3")}
	if _, err := h.pipeline.Export(context.Background(), scenes, config.Square); err != nil {
		t.Fatal(err)
	}

	graph := h.graph.(*audio.Graph)
	events := graph.Events()
	if len(events) != 8 {
		t.Fatalf("Expected start/stop per scene, got %+v", events)
	}

	var cumulative time.Duration
	var lastStop time.Duration
	for i := 0; i < 4; i++ {
		start, stop := events[2*i], events[2*i+1]
		if start.Kind != "start" || stop.Kind != "stop" || start.Source != stop.Source {
			t.Fatalf("Scene %d: unexpected event order %+v %+v", i, start, stop)
		}
		if start.At < lastStop {
			t.Errorf("Scene %d audio started at %v before previous stop %v", i, start.At, lastStop)
		}
		cumulative += []time.Duration{1700, 3500, 1200, 2500}[i] * time.Millisecond
		if stop.At > cumulative+frame {
			t.Errorf("Scene %d audio stopped at %v, later than %v", i, stop.At, cumulative+frame)
		}
		lastStop = stop.At
	}
}

func TestExportEmptyInput(t *testing.T) {
	h := newHarness(&fakeLoader{})
	_, err := h.pipeline.Export(context.Background(), nil, config.Landscape)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("Expected ErrEmptyInput, got %v", err)
	}
	if h.created != 0 {
		t.Error("No recorder may be created for empty input")
	}
}

func TestExportSkipsFailedScene(t *testing.T) {
	h := newHarness(&fakeLoader{
		audio:   map[string]time.Duration{"a.mp3": 3 * time.Second, "b.mp3": time.Second, "c.mp3": 2 * time.Second},
		failVis: map[string]bool{"b.png": true},
	})
	scenes := []scene.Scene{ready("a", "a.mp3"), ready("b", "b.mp3"), ready("c", "c.mp3")}

	res, err := h.pipeline.Export(context.Background(), scenes, config.Landscape)
	if err != nil {
		t.Fatalf("Export should survive a failing scene: %v", err)
	}
	if res.Blob == nil {
		t.Fatal("Expected a blob")
	}
	if !res.Scenes[1].Skipped || res.Scenes[1].Frames != 0 {
		t.Errorf("Scene 2 should be skipped with no frames: %+v", res.Scenes[1])
	}
	var loadErr *source.AssetLoadError
	if !errors.As(res.Scenes[1].Err, &loadErr) {
		t.Errorf("Expected AssetLoadError in report, got %v", res.Scenes[1].Err)
	}
	if !within(res.Duration, 6*time.Second, frame) {
		t.Errorf("Expected ~6s (scenes 1 and 3 only), got %v", res.Duration)
	}
	if !within(res.Scenes[0].Shown, 3500*time.Millisecond, frame) || !within(res.Scenes[2].Shown, 2500*time.Millisecond, frame) {
		t.Errorf("Scenes kept their own durations: %v %v", res.Scenes[0].Shown, res.Scenes[2].Shown)
	}
}

func TestExportPortraitDimensions(t *testing.T) {
	h := newHarness(&fakeLoader{audio: map[string]time.Duration{"a.mp3": 100 * time.Millisecond}})
	res, err := h.pipeline.Export(context.Background(), []scene.Scene{ready("a", "a.mp3")}, config.Portrait)
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 720 || res.Height != 1280 {
		t.Errorf("Expected 720x1280, got %dx%d", res.Width, res.Height)
	}
	if h.recorder.opts.Width != 720 || h.recorder.opts.Height != 1280 || h.recorder.size != image.Rect(0, 0, 720, 1280) {
		t.Errorf("Recorder saw %dx%d frames %v", h.recorder.opts.Width, h.recorder.opts.Height, h.recorder.size)
	}
}

func TestExportRejectsConcurrentCalls(t *testing.T) {
	loader := &fakeLoader{
		audio:   map[string]time.Duration{"a.mp3": 100 * time.Millisecond},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	h := newHarness(loader)

	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Export(context.Background(), []scene.Scene{ready("a", "a.mp3")}, config.Landscape)
		done <- err
	}()
	<-loader.entered

	if _, err := h.pipeline.Export(context.Background(), []scene.Scene{ready("b", "a.mp3")}, config.Landscape); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("Expected ErrExportInProgress, got %v", err)
	}
	close(loader.block)
	if err := <-done; err != nil {
		t.Errorf("First export failed: %v", err)
	}
}

func TestExportCancellation(t *testing.T) {
	loader := &fakeLoader{
		audio:   map[string]time.Duration{"a.mp3": time.Second},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	h := newHarness(loader)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	var res *Result
	go func() {
		var err error
		res, err = h.pipeline.Export(ctx, []scene.Scene{ready("a", "a.mp3"), ready("b", "a.mp3")}, config.Landscape)
		done <- err
	}()
	<-loader.entered
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Error("Cancelled export must not return a result")
	}
	if !h.recorder.stopped {
		t.Error("Recorder must be released on cancellation")
	}
}

func TestExportUnknownAspect(t *testing.T) {
	h := newHarness(&fakeLoader{})
	if _, err := h.pipeline.Export(context.Background(), []scene.Scene{ready("a", "")}, "4:3"); err == nil {
		t.Error("Expected error for unknown aspect ratio")
	}
}

func TestExportRecorderSetupFailure(t *testing.T) {
	h := newHarness(&fakeLoader{})
	h.pipeline.probe = func(context.Context) (video.Prober, error) {
		return nil, errors.New("ffmpeg not found")
	}
	_, err := h.pipeline.Export(context.Background(), []scene.Scene{ready("a", "")}, config.Landscape)
	var setupErr *video.CaptureSetupError
	if !errors.As(err, &setupErr) {
		t.Errorf("Expected CaptureSetupError, got %v", err)
	}
}
