// Package video negotiates an output container and records composited
// frames plus graph audio into one encoded blob.
package video

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ivlev/storyreel/internal/system"
)

// Container is an output format ffmpeg can stream to a pipe.
type Container struct {
	Name       string
	Format     string
	VideoCodec string
	AudioCodec string
	MimeType   string
	Extension  string
	ExtraArgs  []string
}

// Candidates in priority order.
var Candidates = []Container{
	{
		Name: "mp4-h264", Format: "mp4", VideoCodec: "libx264", AudioCodec: "aac",
		MimeType: "video/mp4;codecs=avc1,mp4a", Extension: ".mp4",
		// A pipe is not seekable, so the moov atom has to come first.
		ExtraArgs: []string{"-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
	{
		Name: "webm-vp9", Format: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus",
		MimeType: "video/webm;codecs=vp9,opus", Extension: ".webm",
		ExtraArgs: []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	{
		Name: "webm-vp8", Format: "webm", VideoCodec: "libvpx", AudioCodec: "libopus",
		MimeType: "video/webm;codecs=vp8,opus", Extension: ".webm",
		ExtraArgs: []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
}

// Default is used when no candidate reports support. Every ffmpeg build
// carries these native encoders.
var Default = Container{
	Name: "matroska-mpeg4", Format: "matroska", VideoCodec: "mpeg4", AudioCodec: "flac",
	MimeType: "video/x-matroska", Extension: ".mkv",
}

// Prober reports whether the runtime can produce a container.
type Prober interface {
	Supports(c Container) bool
}

// Capabilities is what `ffmpeg -encoders` and `ffmpeg -muxers` reported.
type Capabilities struct {
	Encoders map[string]bool
	Muxers   map[string]bool
}

func (c Capabilities) Supports(ct Container) bool {
	return c.Muxers[ct.Format] && c.Encoders[ct.VideoCodec] && c.Encoders[ct.AudioCodec]
}

func ProbeCapabilities(ctx context.Context, ffmpeg string) (Capabilities, error) {
	enc, err := system.ProbeEncoders(ctx, ffmpeg)
	if err != nil {
		return Capabilities{}, err
	}
	mux, err := system.ProbeMuxers(ctx, ffmpeg)
	if err != nil {
		return Capabilities{}, err
	}
	return Capabilities{Encoders: enc, Muxers: mux}, nil
}

// Negotiate returns the first supported candidate, or Default. When
// preferEncoder is supported it replaces the video codec of H.264
// candidates (hardware encoders such as h264_nvenc).
func Negotiate(p Prober, candidates []Container, preferEncoder string) (Container, bool) {
	for _, c := range candidates {
		if preferEncoder != "" && c.VideoCodec == "libx264" {
			alt := c
			alt.VideoCodec = preferEncoder
			if p.Supports(alt) {
				return alt, true
			}
		}
		if p.Supports(c) {
			return c, true
		}
	}
	return Default, false
}

// qualityArgs maps the configured quality onto the encoder's rate control.
// Zero keeps the encoder default.
func qualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		if quality <= 0 {
			quality = 60
		}
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality <= 0 {
			return []string{"-preset", "p4"}
		}
		return []string{"-preset", "p4", "-cq", strconv.Itoa(quality)}
	case "libx264":
		args := []string{"-preset", "veryfast", "-tune", "stillimage"}
		if quality > 0 {
			args = append(args, "-crf", strconv.Itoa(quality))
		}
		return args
	case "libvpx", "libvpx-vp9":
		if quality <= 0 {
			quality = 32
		}
		return []string{"-crf", strconv.Itoa(quality), "-b:v", "0"}
	case "mpeg4":
		return []string{"-q:v", "4"}
	}
	return nil
}
