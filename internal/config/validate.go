package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for values that would break at runtime.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("config: api_base_url is required")
	}
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("config: api_base_url %q is not a valid URL", c.APIBaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("config: api_base_url scheme %q must be http or https", parsed.Scheme)
	}

	if c.RealtimeURL != "" {
		ws, err := url.Parse(c.RealtimeURL)
		if err != nil || ws.Host == "" {
			return fmt.Errorf("config: realtime_url %q is not a valid URL", c.RealtimeURL)
		}
		if ws.Scheme != "ws" && ws.Scheme != "wss" {
			return fmt.Errorf("config: realtime_url scheme %q must be ws or wss", ws.Scheme)
		}
	}

	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: log_format %q must be console or json", c.LogFormat)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q must be debug, info, warn, or error", c.LogLevel)
	}

	if c.MaxVideoMiB < c.MaxFileMiB {
		return fmt.Errorf("config: max_video_mib (%d) must be at least max_file_mib (%d)", c.MaxVideoMiB, c.MaxFileMiB)
	}
	return nil
}
