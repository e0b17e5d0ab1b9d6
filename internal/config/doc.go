// Package config loads, normalizes, and validates the TOML configuration
// shared by the reelstream CLI and daemon.
package config
