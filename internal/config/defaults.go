package config

import (
	"os"
	"path/filepath"
)

// Default returns a configuration populated with sensible defaults. The API
// key is intentionally left empty; it must come from the file, environment,
// or a CLI flag.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		APIBaseURL:     "https://api.marklift.dev",
		RealtimeURL:    "wss://api.marklift.dev/ws",
		DownloadDir:    filepath.Join(home, "Downloads"),
		StateDir:       filepath.Join(home, ".local", "share", "marklift"),
		LogLevel:       "info",
		LogFormat:      "console",
		RequestTimeout: 300,
		MaxFileMiB:     100,
		MaxVideoMiB:    2048,
		CrawlDepth:     2,
		MaxPages:       25,
	}
}
