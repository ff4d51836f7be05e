package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marklift/internal/config"
)

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api.marklift.dev" {
		t.Fatalf("unexpected base URL %q", cfg.APIBaseURL)
	}
	if cfg.Timeout() != 300*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Timeout())
	}
	if cfg.HasCredential() {
		t.Fatal("no credential expected by default")
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for explicit missing path")
	}
}

func TestLoadParsesFileAndAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`api_base_url = "https://convert.internal/"`,
		`api_key = "from-file"`,
		`request_timeout = 60`,
		`max_file_mib = 10`,
		`max_video_mib = 20`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MARKLIFT_API_KEY", "from-env")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "https://convert.internal" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.APIBaseURL)
	}
	if cfg.APIKey != "from-env" {
		t.Fatalf("environment override lost: %q", cfg.APIKey)
	}
	if cfg.MaxFileBytes() != 10<<20 || cfg.MaxVideoBytes() != 20<<20 {
		t.Fatalf("unexpected limits: %d / %d", cfg.MaxFileBytes(), cfg.MaxVideoBytes())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty base url", func(c *config.Config) { c.APIBaseURL = "" }},
		{"bad scheme", func(c *config.Config) { c.APIBaseURL = "ftp://example.com" }},
		{"bad realtime scheme", func(c *config.Config) { c.RealtimeURL = "https://example.com/ws" }},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"video ceiling below file ceiling", func(c *config.Config) {
			c.MaxFileMiB = 100
			c.MaxVideoMiB = 50
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "api_base_url") {
		t.Fatal("sample config missing expected keys")
	}
}
