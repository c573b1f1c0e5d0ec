// Package config loads, validates, and watches the TOML configuration for
// the xtap pipeline daemon.
//
// Load resolves the config path (explicit flag, ~/.config/xtap/config.toml,
// then ./xtap.toml), applies defaults for missing values, expands ~ in path
// fields, and validates the result. Watch re-loads the file on change so a
// running daemon can pick up output-dir and capture toggles without restart.
package config
