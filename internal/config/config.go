package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const envPrefix = "marklift"

// Config holds all marklift settings.
type Config struct {
	APIBaseURL  string `toml:"api_base_url" envconfig:"API_BASE_URL"`
	RealtimeURL string `toml:"realtime_url" envconfig:"REALTIME_URL"`
	APIKey      string `toml:"api_key" envconfig:"API_KEY"`

	DownloadDir string `toml:"download_dir" envconfig:"DOWNLOAD_DIR"`
	StateDir    string `toml:"state_dir" envconfig:"STATE_DIR"`
	LogDir      string `toml:"log_dir" envconfig:"LOG_DIR"`
	LogLevel    string `toml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat   string `toml:"log_format" envconfig:"LOG_FORMAT"`

	// RequestTimeout is expressed in seconds. Conversions of large media are
	// long-running, so the default is on the order of minutes.
	RequestTimeout int `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	MaxFileMiB  int `toml:"max_file_mib" envconfig:"MAX_FILE_MIB"`
	MaxVideoMiB int `toml:"max_video_mib" envconfig:"MAX_VIDEO_MIB"`

	CrawlDepth    int  `toml:"crawl_depth" envconfig:"CRAWL_DEPTH"`
	MaxPages      int  `toml:"max_pages" envconfig:"MAX_PAGES"`
	IncludeImages bool `toml:"include_images" envconfig:"INCLUDE_IMAGES"`
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "marklift", "config.toml")
}

// Load reads configuration from path, falling back to defaults when the
// default path has no file yet, then applies environment overrides and
// validates the result. An explicitly supplied path must exist.
func Load(path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No file at the default location; env and defaults carry the load.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteSample writes the annotated sample configuration to path, refusing to
// clobber an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the state, log, and download directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.StateDir, c.LogDir, c.DownloadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Timeout returns the outbound request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// MaxFileBytes returns the standard upload ceiling in bytes.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.MaxFileMiB) << 20
}

// MaxVideoBytes returns the video upload ceiling in bytes.
func (c *Config) MaxVideoBytes() int64 {
	return int64(c.MaxVideoMiB) << 20
}

// HasCredential reports whether an API key is configured.
func (c *Config) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.RealtimeURL = strings.TrimSpace(c.RealtimeURL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	c.DownloadDir = expandPath(c.DownloadDir)
	c.StateDir = expandPath(c.StateDir)
	c.LogDir = expandPath(c.LogDir)
	if c.LogDir == "" && c.StateDir != "" {
		c.LogDir = filepath.Join(c.StateDir, "logs")
	}

	def := Default()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.MaxFileMiB <= 0 {
		c.MaxFileMiB = def.MaxFileMiB
	}
	if c.MaxVideoMiB <= 0 {
		c.MaxVideoMiB = def.MaxVideoMiB
	}
	if c.CrawlDepth <= 0 {
		c.CrawlDepth = def.CrawlDepth
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
