// Package output renders command results for the slotmesh CLI.
//
// Supported formats:
//
//   - table: aligned columns, the default for terminals
//   - json: indented JSON
//   - yaml: YAML, via the same parser the config loader uses
package output
