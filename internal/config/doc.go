// Package config provides 12-factor configuration for the barlink daemons.
//
// Configuration is loaded from BARLINK_* environment variables with sensible
// defaults, optionally overlaid by a YAML file for deployments that want a
// single checked-in description.
//
// Configuration Sections:
//   - Channel: shared-memory channel identity and ring geometry
//   - Telemetry: feed daemon sampling interval and publish rate cap
//   - Bridge: websocket bridge listen address and allowed origins
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	ring, err := cfg.Channel.RingConfig()
package config
