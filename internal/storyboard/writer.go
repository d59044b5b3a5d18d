package storyboard

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Write writes a storyboard to a YAML file
func Write(sb *Storyboard, path string) error {
	if sb.Version == "" {
		sb.Version = "1.0"
	}
	data, err := yaml.Marshal(sb)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Read reads a storyboard from a YAML file
func Read(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sb Storyboard
	if err := yaml.Unmarshal(data, &sb); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	sb.dir = filepath.Dir(abs)
	return &sb, nil
}
