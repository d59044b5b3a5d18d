package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/generate"
	"github.com/ivlev/storyreel/internal/logger"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/storyboard"
)

var (
	generateTopic  string
	generateScenes int
	generateAspect string
	generateOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate [storyboard.yaml]",
	Short: "Fill in narration, visuals and speech through the provider service",
	Long:  "Generate writes a new storyboard from --topic, or fills the pending and failed scenes of an existing one, by calling the service at generate.endpoint.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(nil); err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Generate.Endpoint == "" {
			return errors.New("no provider configured: set generate.endpoint or STORYREEL_PROVIDER_URL")
		}
		if len(args) == 0 && generateTopic == "" {
			return errors.New("give a storyboard to fill or a --topic to start from")
		}

		provider := generate.NewHTTPProvider(cfg.Generate.Endpoint, cfg.Generate.Token, logger.Named(log, "provider"))
		opts := generate.OptionsFromConfig(cfg)
		// OnUpdate runs under the populator's lock.
		last := make(map[int]scene.Status)
		opts.OnUpdate = func(u generate.Update) {
			if last[u.Index] == u.Scene.Status {
				return
			}
			last[u.Index] = u.Scene.Status
			switch u.Scene.Status {
			case scene.StatusLoading:
				fmt.Printf("[*] Scene %d: generating\n", u.Index+1)
			case scene.StatusCompleted:
				fmt.Printf("[+] Scene %d: done\n", u.Index+1)
			case scene.StatusError:
				fmt.Printf("[!] Scene %d: %s\n", u.Index+1, u.Scene.Err)
			}
		}
		pop := generate.NewPopulator(provider, provider, provider, opts, logger.Named(log, "generate"))

		ctx, cancel := signalContext()
		defer cancel()

		var sb *storyboard.Storyboard
		var scenes []scene.Scene
		out := generateOutput
		if len(args) > 0 {
			var err error
			if sb, scenes, err = loadStoryboard(args); err != nil {
				return err
			}
			if out == "" {
				out = args[0]
			}
		} else {
			sb = &storyboard.Storyboard{Title: generateTopic, Aspect: generateAspect}
			if out == "" {
				out = storyboard.OutputPath(storyboardDir, generateTopic, ".yaml")
			}
			fmt.Printf("[*] Writing %d scenes about %q\n", generateScenes, generateTopic)
			var err error
			if scenes, err = pop.Script(ctx, generateTopic, generateScenes); err != nil {
				return err
			}
		}
		aspect, err := aspectFor(generateAspect, sb)
		if err != nil {
			return err
		}

		tl := scene.NewTimeline(scenes)
		if err := pop.Populate(ctx, tl, aspect); err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := sb.SetDir(filepath.Dir(out)); err != nil {
			return err
		}
		sb.Aspect = string(aspect)
		sb.SetRecords(tl.Scenes())
		if err := storyboard.Write(sb, out); err != nil {
			return fmt.Errorf("write storyboard: %w", err)
		}

		failed := 0
		for _, s := range tl.Scenes() {
			if s.Status == scene.StatusError {
				failed++
			}
		}
		if failed > 0 {
			log.Warn("some scenes failed to generate", zap.Int("failed", failed))
		}
		fmt.Printf("[+] Saved %s (%d scenes, %d failed)\n", out, tl.Len(), failed)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateTopic, "topic", "", "start a new storyboard about this topic")
	generateCmd.Flags().IntVar(&generateScenes, "scenes", 5, "number of scenes to write for a new storyboard")
	generateCmd.Flags().StringVar(&generateAspect, "aspect", "", "16:9, 9:16 or 1:1 (default: storyboard aspect, then 16:9)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "storyboard to write (default: the input, or a new file under --dir)")
	rootCmd.AddCommand(generateCmd)
}
