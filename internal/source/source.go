// Package source resolves scene asset references into drawable visuals and
// decoded narration buffers.
package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/scene"
)

// AssetLoadError reports a failed visual or audio load for one scene.
type AssetLoadError struct {
	Asset string // "visual" or "audio"
	URI   string
	Err   error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load %s %s: %v", e.Asset, e.URI, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// Visual is a drawable scene visual. Stills ignore Play and Pause.
type Visual interface {
	Size() image.Point
	// Frame returns the image to draw now. It never returns nil.
	Frame() image.Image
	Play(ctx context.Context) error
	Pause()
	Close() error
}

type Loader interface {
	LoadVisual(ctx context.Context, v scene.Visual) (Visual, error)
	LoadAudio(ctx context.Context, uri string) (*audio.Buffer, error)
}

type Options struct {
	FFmpeg     string
	FFprobe    string
	SampleRate int
	Channels   int
	DPI        int
	Client     *http.Client
	Log        *zap.Logger
}

// MediaLoader loads local files and http(s) URLs. It never retries.
type MediaLoader struct {
	opts Options
	log  *zap.Logger
}

func NewMediaLoader(opts Options) *MediaLoader {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.FFprobe == "" {
		opts.FFprobe = "ffprobe"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 60 * time.Second}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaLoader{opts: opts, log: log}
}

func (l *MediaLoader) LoadVisual(ctx context.Context, v scene.Visual) (Visual, error) {
	vis, err := l.loadVisual(ctx, v)
	if err != nil {
		return nil, &AssetLoadError{Asset: "visual", URI: v.URI, Err: err}
	}
	l.log.Debug("visual loaded",
		zap.String("kind", string(v.Kind)),
		zap.String("uri", v.URI),
		zap.Int("width", vis.Size().X),
		zap.Int("height", vis.Size().Y))
	return vis, nil
}

func (l *MediaLoader) loadVisual(ctx context.Context, v scene.Visual) (Visual, error) {
	switch v.Kind {
	case scene.VisualImage:
		if path, page, ok := pdfRef(v.URI); ok {
			return loadPDFPage(path, page, l.opts.DPI)
		}
		data, err := l.fetch(ctx, v.URI)
		if err != nil {
			return nil, err
		}
		return decodeStill(data)
	case scene.VisualVideo:
		return l.loadLoopVideo(ctx, v.URI)
	}
	return nil, fmt.Errorf("scene has no visual")
}

func (l *MediaLoader) LoadAudio(ctx context.Context, uri string) (*audio.Buffer, error) {
	buf, err := l.loadAudio(ctx, uri)
	if err != nil {
		return nil, &AssetLoadError{Asset: "audio", URI: uri, Err: err}
	}
	l.log.Debug("audio decoded", zap.String("uri", uri), zap.Duration("duration", buf.Duration()))
	return buf, nil
}

func (l *MediaLoader) loadAudio(ctx context.Context, uri string) (*audio.Buffer, error) {
	if uri == "" {
		return nil, fmt.Errorf("empty audio uri")
	}
	data, err := l.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	return decodeAudio(ctx, l.opts.FFmpeg, data, l.opts.SampleRate, l.opts.Channels)
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// fetch reads the raw bytes behind uri.
func (l *MediaLoader) fetch(ctx context.Context, uri string) ([]byte, error) {
	if !isRemote(uri) {
		return os.ReadFile(strings.TrimPrefix(uri, "file://"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", uri, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
