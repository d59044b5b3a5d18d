package storyboard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OutputPath creates a timestamped file name for an export of sb.
func OutputPath(dir, title, ext string) string {
	name := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	if name == "" {
		name = "storyreel"
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, timestamp, ext))
}

// FindLatest finds the most recent storyboard file in dir
func FindLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read storyboard directory: %w", err)
	}

	var boards []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			boards = append(boards, filepath.Join(dir, name))
		}
	}

	if len(boards) == 0 {
		return "", fmt.Errorf("no storyboard files found in %s", dir)
	}

	// Sort by modification time (newest first)
	sort.Slice(boards, func(i, j int) bool {
		infoI, _ := os.Stat(boards[i])
		infoJ, _ := os.Stat(boards[j])
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return boards[0], nil
}
