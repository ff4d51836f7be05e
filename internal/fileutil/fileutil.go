// Package fileutil provides filesystem helpers for saving conversion
// artifacts.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WritePayload saves data under dir with the requested filename, never
// clobbering an existing file. It writes through a temp file and renames so a
// crash cannot leave a truncated artifact. The final path is returned.
func WritePayload(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	target, err := UniquePath(dir, filename)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".marklift-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize %s: %w", target, err)
	}
	return target, nil
}

// UniquePath returns a path under dir for filename, suffixing the stem with a
// counter when the name is already taken.
func UniquePath(dir, filename string) (string, error) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	if stem == "" {
		stem = "artifact"
	}

	for i := 0; i < 1000; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil && !os.IsExist(err) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free filename for %s in %s", filename, dir)
}
