package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Decode reads a snapshot from r.
// Missing maps are initialized so that callers can mutate the result directly.
func Decode(r io.Reader) (*Threadcap, error) {
	var tc Threadcap
	if err := json.NewDecoder(r).Decode(&tc); err != nil {
		return nil, fmt.Errorf("failed to decode threadcap: %w", err)
	}
	if tc.Nodes == nil {
		tc.Nodes = make(map[string]*Node)
	}
	if tc.Commenters == nil {
		tc.Commenters = make(map[string]*Commenter)
	}
	return &tc, nil
}

// Encode writes the snapshot to w as indented JSON.
func Encode(w io.Writer, tc *Threadcap) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(tc)
}

// ReadFile loads a snapshot from a JSON file.
func ReadFile(path string) (*Threadcap, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided snapshot path is intentional
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// WriteFile stores the snapshot at path.
//
// Design decision: We write to a temporary file in the same directory and
// rename it over the target, so an interrupted run never leaves a truncated
// snapshot behind. The snapshot is the only resumable state of a capture.
func WriteFile(path string, tc *Threadcap) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".threadcap-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, tc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to encode threadcap: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
