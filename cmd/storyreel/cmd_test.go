package main

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/storyboard"
)

func TestOutputFor(t *testing.T) {
	tests := []struct {
		path, ext, want string
	}{
		{"out/reel.mp4", ".mp4", "out/reel.mp4"},
		{"out/reel.mp4", ".webm", "out/reel.webm"},
		{"reel", ".mkv", "reel.mkv"},
		{"reel.MP4", ".mp4", "reel.MP4"},
	}
	for _, tt := range tests {
		if got := outputFor(tt.path, "title", tt.ext); got != tt.want {
			t.Errorf("outputFor(%q, %q) = %q, want %q", tt.path, tt.ext, got, tt.want)
		}
	}

	got := outputFor("", "My Reel", ".webm")
	if filepath.Dir(got) != "output" || !strings.HasPrefix(filepath.Base(got), "My_Reel_") || filepath.Ext(got) != ".webm" {
		t.Errorf("Unexpected generated path %q", got)
	}
}

func TestPreviewSize(t *testing.T) {
	tests := []struct {
		aspect config.AspectRatio
		width  int
		want   image.Point
	}{
		{config.Landscape, 640, image.Pt(640, 360)},
		{config.Portrait, 360, image.Pt(360, 640)},
		{config.Square, 0, image.Pt(1080, 1080)},
		{config.Landscape, 4000, image.Pt(1280, 720)},
	}
	for _, tt := range tests {
		got, err := previewSize(tt.aspect, tt.width)
		if err != nil {
			t.Fatalf("previewSize(%s) failed: %v", tt.aspect, err)
		}
		if got != tt.want {
			t.Errorf("previewSize(%s, %d) = %v, want %v", tt.aspect, tt.width, got, tt.want)
		}
	}
	if _, err := previewSize("4:3", 640); err == nil {
		t.Error("Expected error for unsupported aspect")
	}
}

func TestAspectFor(t *testing.T) {
	sb := &storyboard.Storyboard{Aspect: "9:16"}
	if got, _ := aspectFor("", sb); got != config.Portrait {
		t.Errorf("Expected storyboard aspect, got %s", got)
	}
	if got, _ := aspectFor("1:1", sb); got != config.Square {
		t.Errorf("Expected flag to win, got %s", got)
	}
	if got, _ := aspectFor("", &storyboard.Storyboard{}); got != config.Landscape {
		t.Errorf("Expected landscape default, got %s", got)
	}
	if _, err := aspectFor("4:3", sb); err == nil {
		t.Error("Expected error for unsupported aspect")
	}
}

func TestGenerateCommandWritesStoryboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/narration":
			json.NewEncoder(w).Encode(map[string]any{"scenes": []string{"Whales sing.", "Waves roll."}})
		case "/visual":
			json.NewEncoder(w).Encode(map[string]string{"kind": "image", "uri": "https://cdn.example.com/v.png"})
		case "/speech":
			json.NewEncoder(w).Encode(map[string]string{"uri": "https://cdn.example.com/a.mp3"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "ocean.yaml")
	t.Setenv("STORYREEL_PROVIDER_URL", srv.URL)
	t.Setenv("STORYREEL_LOG_LEVEL", "error")
	rootCmd.SetArgs([]string{"generate", "--topic", "ocean", "--scenes", "2", "--aspect", "9:16", "-o", out})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	sb, err := storyboard.Read(out)
	if err != nil {
		t.Fatal(err)
	}
	if sb.Title != "ocean" || sb.Aspect != "9:16" {
		t.Errorf("Unexpected header %+v", sb)
	}
	scenes, err := sb.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 2 {
		t.Fatalf("Expected 2 scenes, got %d", len(scenes))
	}
	for i, s := range scenes {
		if s.Status != scene.StatusCompleted || !s.Ready() {
			t.Errorf("Scene %d not generated: %+v", i, s)
		}
	}
}
