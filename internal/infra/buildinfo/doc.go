// Package buildinfo exposes the slotmesh build version.
//
// Version, Commit and BuildTime are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/slotmesh/internal/infra/buildinfo.Version=v0.3.0"
//
// Values left unset fall back to the module build info recorded by the Go
// toolchain.
package buildinfo
