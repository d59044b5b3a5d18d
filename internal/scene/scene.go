// Package scene holds the scene record and the ordered timeline the preview
// and export paths read from.
package scene

import (
	"errors"
	"fmt"
)

var ErrInvalidScene = errors.New("invalid scene")

type VisualKind string

const (
	VisualNone  VisualKind = ""
	VisualImage VisualKind = "image"
	VisualVideo VisualKind = "video"
)

// Visual references a still image (or PDF page) or a looping short clip.
type Visual struct {
	Kind VisualKind `yaml:"kind"`
	URI  string     `yaml:"uri"`
}

func (v Visual) Present() bool {
	return v.Kind != VisualNone && v.URI != ""
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusLoading, StatusCompleted, StatusError:
		return Status(s), nil
	case "":
		return StatusPending, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidScene, s)
}

// Scene is written by the generation pipeline. Rendering code only reads it.
type Scene struct {
	ID        string
	Narration string
	Visual    Visual
	AudioURI  string
	Status    Status
	Err       string

	// In-flight regeneration flags, independent of Status.
	RegeneratingAudio bool
	RegeneratingImage bool
	GeneratingVideo   bool
}

func (s Scene) HasAudio() bool {
	return s.AudioURI != ""
}

// Ready reports whether the scene can be exported: visual and audio present.
func (s Scene) Ready() bool {
	return s.Visual.Present() && s.HasAudio()
}

func (s Scene) Busy() bool {
	return s.RegeneratingAudio || s.RegeneratingImage || s.GeneratingVideo
}

func (s Scene) Validate() error {
	if s.Status == StatusCompleted && !s.Visual.Present() {
		return fmt.Errorf("%w: scene %q is completed without a visual", ErrInvalidScene, s.ID)
	}
	switch s.Visual.Kind {
	case VisualNone, VisualImage, VisualVideo:
	default:
		return fmt.Errorf("%w: scene %q has unknown visual kind %q", ErrInvalidScene, s.ID, s.Visual.Kind)
	}
	return nil
}

// ReadyScenes keeps the scenes eligible for export, in order.
func ReadyScenes(scenes []Scene) []Scene {
	ready := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.Ready() {
			ready = append(ready, s)
		}
	}
	return ready
}
