package clinic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads YAML settings from path, applies defaults and validates them.
// An empty path returns the prepared defaults.
func LoadFile(path string) (*Settings, error) {
	if path == "" {
		s := DefaultSettings()
		if err := s.Prepare(); err != nil {
			return nil, err
		}
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clinic: read settings file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and prepares settings from YAML bytes.
func ParseYAML(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("clinic: decode settings: %w", err)
	}
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	return &s, nil
}
