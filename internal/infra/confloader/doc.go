// Package confloader loads layered configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. Defaults (the target struct as passed in)
//  2. YAML configuration file
//  3. Environment variables (SLOTMESH_ prefix)
//  4. Explicit overrides, usually CLI flags (LoadMap)
//
// Environment keys use a double underscore as the section separator so
// that single underscores survive inside key names:
//
//	SLOTMESH_SESSION__REQUESTED_DUMMIES=3  ->  session.requested_dummies
//
// Watcher reports changes to the configuration file so callers can reload
// the settings that are safe to change at runtime.
package confloader
