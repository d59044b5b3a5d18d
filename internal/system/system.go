package system

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".pdf"}
	VideoExtensions = []string{".mp4", ".webm", ".mov", ".mkv"}
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
)

// InitResourceLimits raises the open-file limit; each loop video and the
// recorder hold ffmpeg pipes open for the whole session.
func InitResourceLimits(log *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("getrlimit failed", zap.Error(err))
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("setrlimit failed", zap.Error(err))
		return
	}
	log.Debug("open file limit raised", zap.Uint64("limit", uint64(rLimit.Cur)))
}

// FindLatest returns the most recently modified file in dir with one of exts.
func FindLatest(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !HasExtension(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files in %s", strings.Join(exts, "/"), dir)
	}
	return latestFile, nil
}

func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// MediaInfo is the subset of ffprobe output the loader needs.
type MediaInfo struct {
	Width    int
	Height   int
	Duration time.Duration
	HasVideo bool
	HasAudio bool
}

// Probe runs ffprobe and reads stream dimensions and container duration.
func Probe(ctx context.Context, ffprobe, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height:format=duration",
		"-of", "json",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var probe struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width, info.Height = s.Width, s.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}
	if probe.Format.Duration != "" {
		secs, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	return info, nil
}

func ProbeEncoders(ctx context.Context, ffmpeg string) (map[string]bool, error) {
	return probeTable(ctx, ffmpeg, "-encoders")
}

func ProbeMuxers(ctx context.Context, ffmpeg string) (map[string]bool, error) {
	return probeTable(ctx, ffmpeg, "-muxers")
}

func probeTable(ctx context.Context, ffmpeg, flag string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", flag).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w", flag, err)
	}
	return parseTable(string(out)), nil
}

// parseTable reads the " FLAGS name  description" rows printed after the
// "--" separator by -encoders / -muxers / -filters.
func parseTable(out string) map[string]bool {
	names := make(map[string]bool)
	body := out
	if idx := strings.Index(out, "--\n"); idx != -1 {
		body = out[idx+3:]
	}
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Muxer rows may list several comma separated names.
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

func LookPath(bin string) (string, bool) {
	p, err := exec.LookPath(bin)
	return p, err == nil
}
