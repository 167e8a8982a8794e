// Package config handles configuration management for fmsys.
// It layers the embedded defaults, the system configuration file and
// FMSYS_* environment variables, and decodes the result into Config.
package config
