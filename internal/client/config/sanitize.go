package config

import "github.com/yndnr/slotmesh/internal/telemetry/logger"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ClientConfig) *ClientConfig {
	sanitized := *cfg

	if sanitized.Control.Token != "" {
		sanitized.Control.Token = logger.MaskSecret(sanitized.Control.Token)
	}

	return &sanitized
}
