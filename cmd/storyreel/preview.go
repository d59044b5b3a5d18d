package main

import (
	"context"
	"fmt"
	"image"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/compositor"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/logger"
	"github.com/ivlev/storyreel/internal/preview"
	"github.com/ivlev/storyreel/internal/transition"
	"github.com/ivlev/storyreel/internal/ui"
	"github.com/ivlev/storyreel/internal/video"
)

var (
	previewAspect   string
	previewEffect   string
	previewDump     string
	previewHeadless bool
)

var previewCmd = &cobra.Command{
	Use:   "preview [storyboard.yaml]",
	Short: "Play the storyboard interactively",
	Long:  "Preview plays scenes with their narration, background music and transitions. Headless mode plays the timeline once without a terminal UI.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headlessFor := func(c *config.Config) bool { return previewHeadless || c.Preview.Headless }
		if err := setup(func(c *config.Config) bool { return !headlessFor(c) }); err != nil {
			return err
		}
		headless := headlessFor(cfg)
		defer logger.Sync()

		sb, scenes, err := loadStoryboard(args)
		if err != nil {
			return err
		}
		aspect, err := aspectFor(previewAspect, sb)
		if err != nil {
			return err
		}
		effectName := previewEffect
		if effectName == "" {
			effectName = sb.Effect
		}
		if effectName == "" {
			effectName = cfg.Preview.Effect
		}
		effect, err := transition.ParseEffect(effectName)
		if err != nil {
			return err
		}

		size, err := previewSize(aspect, cfg.Preview.Width)
		if err != nil {
			return err
		}

		copts, err := compositor.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		comp, err := compositor.New(copts)
		if err != nil {
			return err
		}
		defer comp.Close()

		out := audio.FFplay(cfg.Paths.FFplay)
		if headless {
			out = audio.Discard
		}
		loader := newLoader()
		pc := audio.NewPlaybackContext(loader, out, cfg.Audio.MusicVolume, logger.Named(log, "audio"))
		defer pc.Close()

		var sink preview.FrameSink
		dump := previewDump
		if dump == "" {
			dump = cfg.Preview.DumpMJPEG
		}
		if dump != "" {
			mj, err := video.NewMJPEGSink(dump, size.X, size.Y, cfg.Video.FPS)
			if err != nil {
				return err
			}
			defer func() {
				if err := mj.Close(); err != nil {
					log.Warn("close mjpeg dump", zap.Error(err))
				}
				log.Info("preview dump written", zap.String("path", dump), zap.Int("frames", mj.Frames()))
			}()
			sink = mj
		}

		ctx, cancel := signalContext()
		defer cancel()
		ctx, stop := context.WithCancel(ctx)
		defer stop()

		wrapped := make(chan struct{})
		sys := clock.System{Interval: cfg.FrameInterval()}
		player := preview.NewPlayer(scenes, loader, pc, sys, sys, preview.Options{
			Effect:  effect,
			Nominal: cfg.Audio.NominalDuration,
			Music:   sb.Resolve(sb.Music),
			OnChange: func(s preview.Snapshot) {
				if s.Wraps > 0 {
					select {
					case <-wrapped:
					default:
						close(wrapped)
					}
				}
			},
		}, logger.Named(log, "preview"))
		surface := preview.NewSurface(player, comp, size, sink, logger.Named(log, "surface"))
		defer surface.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return player.Run(gctx) })
		g.Go(func() error { return surface.Run(gctx, sys) })
		g.Go(func() error {
			defer stop()
			if headless {
				player.Play()
				select {
				case <-wrapped:
				case <-gctx.Done():
				}
				return nil
			}
			title := sb.Title
			if title == "" {
				title = "storyreel"
			}
			prog := tea.NewProgram(ui.New(player, fmt.Sprintf("%s  %s", title, aspect)), tea.WithAltScreen(), tea.WithContext(gctx))
			_, err := prog.Run()
			if err != nil && gctx.Err() != nil {
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

// previewSize scales the aspect's export size down to width, keeping the
// ratio.
func previewSize(aspect config.AspectRatio, width int) (image.Point, error) {
	w, h, err := config.Dimensions(aspect)
	if err != nil {
		return image.Point{}, err
	}
	if width <= 0 || width >= w {
		return image.Pt(w, h), nil
	}
	return image.Pt(width, h*width/w), nil
}

func init() {
	previewCmd.Flags().StringVar(&previewAspect, "aspect", "", "16:9, 9:16 or 1:1 (default: storyboard aspect, then 16:9)")
	previewCmd.Flags().StringVar(&previewEffect, "effect", "", "transition: none, fade, zoom or slide")
	previewCmd.Flags().StringVar(&previewDump, "dump", "", "write the rendered preview to a Motion-JPEG AVI")
	previewCmd.Flags().BoolVar(&previewHeadless, "headless", false, "play once without the terminal UI or audio output")
	rootCmd.AddCommand(previewCmd)
}
