package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/storyreel/internal/scene"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadStillFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.png")
	if err := os.WriteFile(path, pngBytes(t, 40, 30), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewMediaLoader(Options{})
	vis, err := l.LoadVisual(context.Background(), scene.Visual{Kind: scene.VisualImage, URI: path})
	if err != nil {
		t.Fatalf("LoadVisual failed: %v", err)
	}
	defer vis.Close()
	if vis.Size() != image.Pt(40, 30) {
		t.Errorf("Unexpected size %v", vis.Size())
	}
	if vis.Frame() == nil {
		t.Error("Frame must not be nil")
	}
}

func TestLoadStillOverHTTP(t *testing.T) {
	data := pngBytes(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	l := NewMediaLoader(Options{Client: srv.Client()})
	ctx := context.Background()
	if _, err := l.LoadVisual(ctx, scene.Visual{Kind: scene.VisualImage, URI: srv.URL + "/ok.png"}); err != nil {
		t.Fatalf("LoadVisual over http failed: %v", err)
	}

	_, err := l.LoadVisual(ctx, scene.Visual{Kind: scene.VisualImage, URI: srv.URL + "/missing.png"})
	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected AssetLoadError, got %v", err)
	}
	if loadErr.Asset != "visual" || !strings.Contains(loadErr.Error(), "404") {
		t.Errorf("Unexpected error %v", loadErr)
	}
}

func TestLoadFailuresAreAssetErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "bad.png")
	os.WriteFile(garbage, []byte("not an image"), 0644)

	l := NewMediaLoader(Options{})
	ctx := context.Background()
	tests := []struct {
		name  string
		load  func() error
		asset string
	}{
		{"missing file", func() error {
			_, err := l.LoadVisual(ctx, scene.Visual{Kind: scene.VisualImage, URI: filepath.Join(dir, "nope.png")})
			return err
		}, "visual"},
		{"corrupt image", func() error {
			_, err := l.LoadVisual(ctx, scene.Visual{Kind: scene.VisualImage, URI: garbage})
			return err
		}, "visual"},
		{"no visual", func() error {
			_, err := l.LoadVisual(ctx, scene.Visual{})
			return err
		}, "visual"},
		{"empty audio", func() error {
			_, err := l.LoadAudio(ctx, "")
			return err
		}, "audio"},
		{"missing audio", func() error {
			_, err := l.LoadAudio(ctx, filepath.Join(dir, "voice.mp3"))
			return err
		}, "audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loadErr *AssetLoadError
			if err := tt.load(); !errors.As(err, &loadErr) {
				t.Fatalf("Expected AssetLoadError, got %v", err)
			}
			if loadErr.Asset != tt.asset {
				t.Errorf("Expected asset %q, got %q", tt.asset, loadErr.Asset)
			}
		})
	}
}

func TestPDFRef(t *testing.T) {
	tests := []struct {
		uri      string
		wantPath string
		wantPage int
		wantOK   bool
	}{
		{"deck.pdf", "deck.pdf", 0, true},
		{"/tmp/Deck.PDF#page=3", "/tmp/Deck.PDF", 2, true},
		{"deck.pdf#4", "deck.pdf", 3, true},
		{"deck.pdf#page=0", "", 0, false},
		{"photo.png", "", 0, false},
		{"https://example.com/deck.pdf", "", 0, false},
	}
	for _, tt := range tests {
		path, page, ok := pdfRef(tt.uri)
		if path != tt.wantPath || page != tt.wantPage || ok != tt.wantOK {
			t.Errorf("pdfRef(%q) = %q, %d, %v", tt.uri, path, page, ok)
		}
	}
}

func TestDecoderArgs(t *testing.T) {
	loop := strings.Join(loopArgs("clip.mp4", 640, 360), " ")
	for _, want := range []string{"-re", "-stream_loop -1", "-an", "-pix_fmt rgba", "-s 640x360", "pipe:1"} {
		if !strings.Contains(loop, want) {
			t.Errorf("loop args %q missing %q", loop, want)
		}
	}

	dec := strings.Join(decodeArgs(48000, 2), " ")
	for _, want := range []string{"-i pipe:0", "-f f32le", "-ar 48000", "-ac 2"} {
		if !strings.Contains(dec, want) {
			t.Errorf("decode args %q missing %q", dec, want)
		}
	}
}
