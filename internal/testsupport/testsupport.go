// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"marklift/internal/config"
)

// NewConfig returns a validated configuration rooted in a per-test temp
// directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.DownloadDir = filepath.Join(base, "downloads")
	cfg.StateDir = filepath.Join(base, "state")
	cfg.LogDir = filepath.Join(base, "logs")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}
