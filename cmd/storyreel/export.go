package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/compositor"
	"github.com/ivlev/storyreel/internal/export"
	"github.com/ivlev/storyreel/internal/logger"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/storyboard"
)

var (
	exportAspect string
	exportOutput string
	exportMusic  bool
)

var exportCmd = &cobra.Command{
	Use:   "export [storyboard.yaml]",
	Short: "Record the ready scenes into one video file",
	Long:  "Export plays every scene that has both a visual and narration in real time and records the result with captions and mixed audio.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(nil); err != nil {
			return err
		}
		defer logger.Sync()

		sb, scenes, err := loadStoryboard(args)
		if err != nil {
			return err
		}
		aspect, err := aspectFor(exportAspect, sb)
		if err != nil {
			return err
		}

		ready := scene.ReadyScenes(scenes)
		if dropped := len(scenes) - len(ready); dropped > 0 {
			log.Warn("scenes without visual or narration are left out", zap.Int("count", dropped))
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

		opts := export.OptionsFromConfig(cfg)
		if exportMusic || cfg.Audio.ExportMusic {
			opts.MusicURI = sb.Resolve(sb.Music)
		}
		pipeline := export.New(opts, newLoader(), comp, logger.Named(log, "export"))

		ctx, cancel := signalContext()
		defer cancel()

		fmt.Printf("[*] Exporting %d scenes (%s)\n", len(ready), aspect)
		res, err := pipeline.Export(ctx, ready, aspect)
		if err != nil {
			if errors.Is(err, export.ErrEmptyInput) {
				return fmt.Errorf("%w: generate visuals and narration first", err)
			}
			return err
		}

		out := outputFor(exportOutput, sb.Title, res.Container.Extension)
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(out, res.Blob, 0644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}

		fmt.Print(res.Report(cfg.BuildVersion))
		fmt.Printf("[+] Saved %s\n", out)
		return nil
	},
}

// outputFor keeps an explicit path but swaps in the negotiated container's
// extension; an empty path becomes a timestamped file under output/.
func outputFor(path, title, ext string) string {
	if path == "" {
		return storyboard.OutputPath("output", title, ext)
	}
	if cur := filepath.Ext(path); !strings.EqualFold(cur, ext) {
		path = strings.TrimSuffix(path, cur) + ext
	}
	return path
}

func init() {
	exportCmd.Flags().StringVar(&exportAspect, "aspect", "", "16:9, 9:16 or 1:1 (default: storyboard aspect, then 16:9)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (extension follows the negotiated container)")
	exportCmd.Flags().BoolVar(&exportMusic, "music", false, "mix the storyboard background music into the export")
	rootCmd.AddCommand(exportCmd)
}
