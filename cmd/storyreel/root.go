package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/logger"
	"github.com/ivlev/storyreel/internal/scene"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/storyboard"
	"github.com/ivlev/storyreel/internal/system"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath    string
	storyboardDir string
	verbose       bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "storyreel",
	Short:         "Preview and export narrated scene timelines",
	Long:          "storyreel plays a storyboard of narrated scenes with transitions and exports it as a single video file with captions and mixed audio.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&storyboardDir, "dir", "storyboards", "directory searched for the newest storyboard when none is given")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and the logger. When quiet reports true for
// the loaded config, log output stays off the terminal.
func setup(quiet func(*config.Config) bool) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.BuildVersion = version
	if verbose {
		cfg.Log.Level = "debug"
	}

	log, err = logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Console:    true,
		Quiet:      quiet != nil && quiet(cfg),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	system.InitResourceLimits(log)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadStoryboard reads the storyboard at args[0], or the newest one in
// storyboardDir.
func loadStoryboard(args []string) (*storyboard.Storyboard, []scene.Scene, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		latest, err := storyboard.FindLatest(storyboardDir)
		if err != nil {
			return nil, nil, err
		}
		path = latest
		log.Info("using newest storyboard", zap.String("path", path))
	}

	sb, err := storyboard.Read(path)
	if err != nil {
		return nil, nil, err
	}
	scenes, err := sb.Records()
	if err != nil {
		return nil, nil, fmt.Errorf("storyboard %s: %w", path, err)
	}
	return sb, scenes, nil
}

// aspectFor picks the flag value, then the storyboard's, then landscape.
func aspectFor(flag string, sb *storyboard.Storyboard) (config.AspectRatio, error) {
	if flag == "" {
		flag = sb.Aspect
	}
	return config.ParseAspect(flag)
}

func newLoader() *source.MediaLoader {
	return source.NewMediaLoader(source.Options{
		FFmpeg:     cfg.Paths.FFmpeg,
		FFprobe:    cfg.Paths.FFprobe,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		DPI:        cfg.Video.DPI,
		Log:        logger.Named(log, "source"),
	})
}
