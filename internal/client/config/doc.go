// Package config defines the slotmesh client configuration.
//
//   - spec.go: ClientConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: copy safe for logging
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// SLOTMESH_* environment variables and CLI flags.
package config
