package storyboard

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ivlev/storyreel/internal/scene"
)

// Storyboard is the on-disk form of a generated timeline.
type Storyboard struct {
	Version string      `yaml:"version"`
	Title   string      `yaml:"title,omitempty"`
	Aspect  string      `yaml:"aspect,omitempty"` // 16:9, 9:16, 1:1
	Music   string      `yaml:"music,omitempty"`  // background track URI
	Effect  string      `yaml:"effect,omitempty"` // preview transition
	Scenes  []SceneSpec `yaml:"scenes"`

	// dir resolves relative URIs; set by Read.
	dir string
}

// SceneSpec is one scene as produced by the generation pipeline.
type SceneSpec struct {
	ID        string       `yaml:"id"`
	Narration string       `yaml:"narration"`
	Visual    scene.Visual `yaml:"visual,omitempty"`
	Audio     string       `yaml:"audio,omitempty"`
	Status    string       `yaml:"status,omitempty"`
	Error     string       `yaml:"error,omitempty"`
}

// Records converts the specs to scene records with URIs resolved against the
// storyboard directory.
func (sb *Storyboard) Records() ([]scene.Scene, error) {
	scenes := make([]scene.Scene, 0, len(sb.Scenes))
	for i, spec := range sb.Scenes {
		status, err := scene.ParseStatus(spec.Status)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		id := spec.ID
		if id == "" {
			id = fmt.Sprintf("scene_%d", i+1)
		}
		visual := spec.Visual
		visual.URI = sb.Resolve(visual.URI)
		s := scene.Scene{
			ID:        id,
			Narration: strings.TrimSpace(spec.Narration),
			Visual:    visual,
			AudioURI:  sb.Resolve(spec.Audio),
			Status:    status,
			Err:       spec.Error,
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

// Resolve makes a relative file URI absolute; URLs and absolute paths pass through.
func (sb *Storyboard) Resolve(uri string) string {
	if uri == "" || sb.dir == "" || filepath.IsAbs(uri) || strings.Contains(uri, "://") {
		return uri
	}
	return filepath.Join(sb.dir, uri)
}

// SetRecords replaces the scene specs with scenes. URIs under the storyboard
// directory are stored relative to it.
func (sb *Storyboard) SetRecords(scenes []scene.Scene) {
	specs := make([]SceneSpec, len(scenes))
	for i, s := range scenes {
		visual := s.Visual
		visual.URI = sb.relative(visual.URI)
		specs[i] = SceneSpec{
			ID:        s.ID,
			Narration: s.Narration,
			Visual:    visual,
			Audio:     sb.relative(s.AudioURI),
			Status:    string(s.Status),
			Error:     s.Err,
		}
	}
	sb.Scenes = specs
}

func (sb *Storyboard) relative(uri string) string {
	if uri == "" || sb.dir == "" || !filepath.IsAbs(uri) {
		return uri
	}
	rel, err := filepath.Rel(sb.dir, uri)
	if err != nil || strings.HasPrefix(rel, "..") {
		return uri
	}
	return rel
}

// SetDir sets the directory relative URIs resolve against, for storyboards
// created in memory.
func (sb *Storyboard) SetDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	sb.dir = abs
	return nil
}
