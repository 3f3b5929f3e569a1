package realmstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeRecordFile writes data to filename via a temp-file-then-rename so a
// crash mid-write never leaves a realm or profile record half-written.
func writeRecordFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("realmstore: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("realmstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("realmstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("realmstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("realmstore: close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("realmstore: set permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		return fmt.Errorf("realmstore: rename temp file into place: %w", err)
	}
	return nil
}
