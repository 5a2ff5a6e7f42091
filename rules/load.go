package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a JSON array of rules from disk.
func LoadFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("rules file must be JSON, got %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of {"key","value","type"} objects.
func Parse(data []byte) ([]Rule, error) {
	var list []Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return list, nil
}
