package config

import "fmt"

type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
	Square    AspectRatio = "1:1"
)

// Dimensions maps an aspect tag to the fixed target pixel size shared by
// the preview surface and the export surface.
func Dimensions(tag AspectRatio) (width, height int, err error) {
	switch tag {
	case Landscape:
		return 1280, 720, nil
	case Portrait:
		return 720, 1280, nil
	case Square:
		return 1080, 1080, nil
	}
	return 0, 0, fmt.Errorf("unsupported aspect ratio %q (want 16:9, 9:16 or 1:1)", string(tag))
}

// ParseAspect accepts the table tags plus a few spellings seen in storyboards.
func ParseAspect(s string) (AspectRatio, error) {
	switch s {
	case "", "16:9", "16x9", "landscape":
		return Landscape, nil
	case "9:16", "9x16", "portrait", "shorts":
		return Portrait, nil
	case "1:1", "1x1", "square":
		return Square, nil
	}
	return "", fmt.Errorf("unsupported aspect ratio %q", s)
}
