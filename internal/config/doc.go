// Package config loads and validates marklift configuration.
//
// Settings come from a TOML file (default ~/.config/marklift/config.toml)
// with environment overrides applied on top via the MARKLIFT_ prefix, so an
// API key can be supplied as MARKLIFT_API_KEY without touching the file.
package config
