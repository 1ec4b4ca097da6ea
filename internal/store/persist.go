package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeJSONAtomic serializes v to path via a temp-file-then-rename so
// readers never observe a half-written file: write to a unique temp file in
// the same directory, then os.Rename over the original.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := json.NewEncoder(tmpFile)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomic replace: %w", err)
	}
	return nil
}
