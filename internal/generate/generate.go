// Package generate fills a timeline with narration, visuals and speech by
// calling provider collaborators. Providers themselves live outside this
// module.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/retry"
	"github.com/ivlev/storyreel/internal/scene"
)

var ErrNoScript = errors.New("narration writer returned no scenes")

// NarrationWriter splits a topic into per-scene narration text.
type NarrationWriter interface {
	WriteNarration(ctx context.Context, topic string, scenes int) ([]string, error)
}

// VisualGenerator produces a still or a short clip for one scene.
type VisualGenerator interface {
	GenerateVisual(ctx context.Context, narration string, aspect config.AspectRatio) (scene.Visual, error)
}

// SpeechSynthesizer voices narration and returns the audio URI.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Update is reported after every status change of one scene.
type Update struct {
	Index int
	Scene scene.Scene
}

type Options struct {
	Workers int
	Retry   retry.Policy
	// OnUpdate is called with the populator's lock held, in status order
	// for each scene.
	OnUpdate func(Update)
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Workers: cfg.Generate.Workers, Retry: cfg.Generate.Retry}
}

type Populator struct {
	writer NarrationWriter
	visual VisualGenerator
	speech SpeechSynthesizer
	opts   Options
	log    *zap.Logger
}

func NewPopulator(writer NarrationWriter, visual VisualGenerator, speech SpeechSynthesizer, opts Options, log *zap.Logger) *Populator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Populator{writer: writer, visual: visual, speech: speech, opts: opts, log: log}
}

// Script asks the writer for narration and returns pending scenes.
func (p *Populator) Script(ctx context.Context, topic string, count int) ([]scene.Scene, error) {
	var texts []string
	err := retry.Do(ctx, p.opts.Retry, func(ctx context.Context) error {
		var err error
		texts, err = p.writer.WriteNarration(ctx, topic, count)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("write narration: %w", err)
	}

	scenes := make([]scene.Scene, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		scenes = append(scenes, scene.Scene{
			ID:        uuid.NewString(),
			Narration: text,
			Status:    scene.StatusPending,
		})
	}
	if len(scenes) == 0 {
		return nil, ErrNoScript
	}
	return scenes, nil
}

// Populate generates the visual and the speech of every pending or errored
// scene on tl. A failed scene ends in StatusError and does not stop the
// others; the returned error is only ctx's. tl must not be used by anyone
// else until Populate returns.
func (p *Populator) Populate(ctx context.Context, tl *scene.Timeline, aspect config.AspectRatio) error {
	var mu sync.Mutex
	update := func(i int, fn func(*scene.Scene)) scene.Scene {
		mu.Lock()
		defer mu.Unlock()
		s, _ := tl.Scene(i)
		fn(&s)
		tl.SetScene(i, s)
		if p.opts.OnUpdate != nil {
			p.opts.OnUpdate(Update{Index: i, Scene: s})
		}
		return s
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, s := range tl.Scenes() {
		if s.Status == scene.StatusCompleted {
			continue
		}
		g.Go(func() error {
			update(i, func(s *scene.Scene) {
				s.Status = scene.StatusLoading
				s.Err = ""
			})
			p.populateScene(gctx, i, s.Narration, aspect, update)
			return gctx.Err()
		})
	}
	return g.Wait()
}

func (p *Populator) populateScene(ctx context.Context, i int, narration string, aspect config.AspectRatio, update func(int, func(*scene.Scene)) scene.Scene) {
	log := p.log.With(zap.Int("scene", i))

	var visual scene.Visual
	var audioURI string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		update(i, func(s *scene.Scene) { s.RegeneratingImage = true })
		defer update(i, func(s *scene.Scene) { s.RegeneratingImage = false })
		return retry.Do(gctx, p.opts.Retry, func(ctx context.Context) error {
			v, err := p.visual.GenerateVisual(ctx, narration, aspect)
			if err == nil && !v.Present() {
				err = retry.Permanent(errors.New("generator returned an empty visual"))
			}
			visual = v
			return err
		})
	})
	g.Go(func() error {
		update(i, func(s *scene.Scene) { s.RegeneratingAudio = true })
		defer update(i, func(s *scene.Scene) { s.RegeneratingAudio = false })
		return retry.Do(gctx, p.opts.Retry, func(ctx context.Context) error {
			uri, err := p.speech.Synthesize(ctx, narration)
			audioURI = uri
			return err
		})
	})

	if err := g.Wait(); err != nil {
		log.Warn("scene generation failed", zap.Error(err))
		update(i, func(s *scene.Scene) {
			s.Status = scene.StatusError
			s.Err = err.Error()
		})
		return
	}
	update(i, func(s *scene.Scene) {
		s.Visual = visual
		s.AudioURI = audioURI
		s.Status = scene.StatusCompleted
	})
	log.Info("scene generated", zap.String("visual", visual.URI), zap.String("audio", audioURI))
}
