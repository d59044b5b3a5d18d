package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/storyreel/internal/retry"
)

type Config struct {
	Paths    Paths          `yaml:"paths"`
	Video    VideoConfig    `yaml:"video"`
	Caption  CaptionConfig  `yaml:"caption"`
	Audio    AudioConfig    `yaml:"audio"`
	Preview  PreviewConfig  `yaml:"preview"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Generate GenerateConfig `yaml:"generate"`
	Log      LogConfig      `yaml:"log"`

	BuildVersion string `yaml:"-"`
}

type Paths struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	FFplay  string `yaml:"ffplay"`
}

type VideoConfig struct {
	FPS          int    `yaml:"fps"`
	Quality      int    `yaml:"quality"`       // 0 = encoder default
	Scaler       string `yaml:"scaler"`        // nearest, bilinear, catmullrom
	VideoEncoder string `yaml:"video_encoder"` // empty = negotiate
	DPI          int    `yaml:"dpi"`           // PDF page visuals
	ShowStats    bool   `yaml:"show_stats"`
}

type CaptionConfig struct {
	FontPath      string  `yaml:"font_path"` // empty = embedded Go Regular
	SizeRatio     float64 `yaml:"size_ratio"`
	MinSize       float64 `yaml:"min_size"`
	MaxWidthRatio float64 `yaml:"max_width_ratio"`
	BottomRatio   float64 `yaml:"bottom_ratio"`
	MinBottom     int     `yaml:"min_bottom"`
}

type AudioConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	MusicVolume     float64       `yaml:"music_volume"`
	ExportMusic     bool          `yaml:"export_music"`
	Padding         time.Duration `yaml:"padding"`
	NominalDuration time.Duration `yaml:"nominal_duration"`
}

type PreviewConfig struct {
	Effect    string `yaml:"effect"`
	DumpMJPEG string `yaml:"dump_mjpeg"`
	Width     int    `yaml:"width"`
	Headless  bool   `yaml:"headless"`
}

type OverlayConfig struct {
	QRURL string `yaml:"qr_url"`
}

// GenerateConfig tunes the scene population run.
type GenerateConfig struct {
	Endpoint string       `yaml:"endpoint"` // provider service base URL
	Token    string       `yaml:"-"`        // STORYREEL_PROVIDER_TOKEN only
	Workers  int          `yaml:"workers"`
	Retry    retry.Policy `yaml:"retry"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	OutputPath string `yaml:"output_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Paths: Paths{FFmpeg: "ffmpeg", FFprobe: "ffprobe", FFplay: "ffplay"},
		Video: VideoConfig{
			FPS:    30,
			Scaler: "bilinear",
			DPI:    150,
		},
		Caption: CaptionConfig{
			SizeRatio:     0.025,
			MinSize:       14,
			MaxWidthRatio: 0.9,
			BottomRatio:   0.03,
			MinBottom:     20,
		},
		Audio: AudioConfig{
			SampleRate:      48000,
			Channels:        2,
			MusicVolume:     0.1,
			Padding:         500 * time.Millisecond,
			NominalDuration: 5 * time.Second,
		},
		Preview:  PreviewConfig{Effect: "fade", Width: 640},
		Generate: GenerateConfig{Workers: 3, Retry: retry.Default()},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
		},
	}
}

// Load reads an optional YAML file on top of Default and then applies the
// environment (a .env file in the working directory is honored).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; existing variables win.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Paths.FFmpeg = getEnv("FFMPEG_PATH", c.Paths.FFmpeg)
	c.Paths.FFprobe = getEnv("FFPROBE_PATH", c.Paths.FFprobe)
	c.Paths.FFplay = getEnv("FFPLAY_PATH", c.Paths.FFplay)
	c.Video.FPS = getEnvInt("STORYREEL_FPS", c.Video.FPS)
	c.Video.Quality = getEnvInt("STORYREEL_QUALITY", c.Video.Quality)
	c.Video.VideoEncoder = getEnv("STORYREEL_VIDEO_ENCODER", c.Video.VideoEncoder)
	c.Caption.FontPath = getEnv("STORYREEL_FONT", c.Caption.FontPath)
	c.Overlay.QRURL = getEnv("STORYREEL_QR_URL", c.Overlay.QRURL)
	c.Generate.Endpoint = getEnv("STORYREEL_PROVIDER_URL", c.Generate.Endpoint)
	c.Generate.Token = getEnv("STORYREEL_PROVIDER_TOKEN", c.Generate.Token)
	c.Log.Level = getEnv("STORYREEL_LOG_LEVEL", c.Log.Level)
	c.Log.OutputPath = getEnv("STORYREEL_LOG_FILE", c.Log.OutputPath)
}

func (c *Config) Validate() error {
	if c.Video.FPS <= 0 || c.Video.FPS > 120 {
		return fmt.Errorf("video.fps must be in 1..120, got %d", c.Video.FPS)
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("audio.sample_rate too low: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.NominalDuration <= 0 {
		return fmt.Errorf("audio.nominal_duration must be positive")
	}
	if c.Audio.Padding < 0 {
		return fmt.Errorf("audio.padding must not be negative")
	}
	if c.Audio.MusicVolume < 0 || c.Audio.MusicVolume > 1 {
		return fmt.Errorf("audio.music_volume must be in 0..1, got %.2f", c.Audio.MusicVolume)
	}
	if c.Caption.MaxWidthRatio <= 0 || c.Caption.MaxWidthRatio > 1 {
		return fmt.Errorf("caption.max_width_ratio must be in (0,1], got %.2f", c.Caption.MaxWidthRatio)
	}
	if c.Generate.Workers < 1 {
		return fmt.Errorf("generate.workers must be positive, got %d", c.Generate.Workers)
	}
	if c.Generate.Retry.MaxAttempts < 1 {
		return fmt.Errorf("generate.retry.max_attempts must be positive, got %d", c.Generate.Retry.MaxAttempts)
	}
	switch c.Video.Scaler {
	case "nearest", "bilinear", "catmullrom":
	default:
		return fmt.Errorf("unknown video.scaler %q", c.Video.Scaler)
	}
	return nil
}

func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Video.FPS)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
