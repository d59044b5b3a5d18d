package scene

import (
	"errors"
	"testing"
)

func sample(n int) []Scene {
	scenes := make([]Scene, n)
	for i := range scenes {
		scenes[i] = Scene{
			ID:       string(rune('a' + i)),
			Visual:   Visual{Kind: VisualImage, URI: "img.png"},
			AudioURI: "voice.mp3",
			Status:   StatusCompleted,
		}
	}
	return scenes
}

func TestReadyScenes(t *testing.T) {
	scenes := sample(4)
	scenes[1].AudioURI = ""
	scenes[2].Visual = Visual{}

	ready := ReadyScenes(scenes)
	if len(ready) != 2 {
		t.Fatalf("Expected 2 ready scenes, got %d", len(ready))
	}
	if ready[0].ID != "a" || ready[1].ID != "d" {
		t.Errorf("Order not preserved: %s, %s", ready[0].ID, ready[1].ID)
	}
}

func TestValidate(t *testing.T) {
	s := Scene{ID: "x", Status: StatusCompleted}
	if err := s.Validate(); !errors.Is(err, ErrInvalidScene) {
		t.Errorf("Expected ErrInvalidScene, got %v", err)
	}

	s.Status = StatusPending
	if err := s.Validate(); err != nil {
		t.Errorf("Pending scene without visual should be valid: %v", err)
	}

	s.Visual = Visual{Kind: "gif", URI: "x.gif"}
	if err := s.Validate(); err == nil {
		t.Error("Expected error for unknown visual kind")
	}
}

func TestTimelineComplete(t *testing.T) {
	tl := NewTimeline(sample(3))
	tl.SetPlaying(true)

	for want := 1; want <= 2; want++ {
		if wrapped := tl.Complete(); wrapped {
			t.Fatalf("Unexpected wrap at index %d", tl.Index())
		}
		if tl.Index() != want {
			t.Fatalf("Expected index %d, got %d", want, tl.Index())
		}
		if !tl.Playing() {
			t.Fatal("Playback stopped before the last scene")
		}
	}

	if wrapped := tl.Complete(); !wrapped {
		t.Fatal("Expected wrap after last scene")
	}
	if tl.Index() != 0 || tl.Playing() {
		t.Errorf("Expected index 0 and stopped, got %d playing=%v", tl.Index(), tl.Playing())
	}
}

func TestTimelineSeekClamps(t *testing.T) {
	tl := NewTimeline(sample(3))
	tests := []struct {
		seek, want int
	}{
		{-5, 0},
		{1, 1},
		{10, 2},
	}
	for _, tt := range tests {
		tl.Seek(tt.seek)
		if tl.Index() != tt.want {
			t.Errorf("Seek(%d) -> %d, want %d", tt.seek, tl.Index(), tt.want)
		}
	}

	if tl.Next() {
		t.Error("Next at last scene should not change index")
	}
	if !tl.Prev() || tl.Index() != 1 {
		t.Errorf("Prev failed, index %d", tl.Index())
	}
}

func TestEmptyTimeline(t *testing.T) {
	tl := NewTimeline(nil)
	tl.SetPlaying(true)
	if tl.Playing() {
		t.Error("Empty timeline must not play")
	}
	if _, ok := tl.Current(); ok {
		t.Error("Empty timeline has no current scene")
	}
	if tl.Complete() {
		t.Error("Complete on empty timeline must be a no-op")
	}
}
