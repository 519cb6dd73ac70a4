// Package config loads, normalizes, and validates the subforge TOML
// configuration.
//
// It locates the config file (explicit path, ~/.config/subforge/config.toml,
// or ./subforge.toml), loads an optional .env file for secrets, applies
// defaults and environment fallbacks for API keys, expands paths, and exposes
// helpers that turn raw values into durations and byte limits. The embedded
// sample config backs `subforge config init`.
package config
