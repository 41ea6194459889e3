package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Verify validates the configuration.
func Verify(cfg *ClientConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyControl(&cfg.Control); err != nil {
		return err
	}
	if err := verifyDemo(&cfg.Demo); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if cfg.ProtocolVersion == 0 {
		return errors.New("server.protocol_version must be positive")
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.TickInterval <= 0 {
		return errors.New("session.tick_interval must be positive")
	}
	if cfg.RequestedDummies < 0 || cfg.RequestedDummies > MaxDummies {
		return fmt.Errorf("session.requested_dummies must be between 0 and %d", MaxDummies)
	}
	if cfg.SnapshotCapacity < 1 {
		return errors.New("session.snapshot_capacity must be at least 1")
	}
	if cfg.InputQueueSize < 1 {
		return errors.New("session.input_queue_size must be at least 1")
	}
	if cfg.MaxPendingSnapshots < 1 {
		return errors.New("session.max_pending_snapshots must be at least 1")
	}
	if cfg.GapTimeout <= 0 {
		return errors.New("session.gap_timeout must be positive")
	}
	if cfg.ResendRate <= 0 || cfg.ResendBurst < 1 {
		return errors.New("session.resend_rate and session.resend_burst must be positive")
	}
	if cfg.ReconnectInterval <= 0 {
		return errors.New("session.reconnect_interval must be positive")
	}
	if cfg.InboundBuffer < 1 {
		return errors.New("session.inbound_buffer must be at least 1")
	}
	return nil
}

func verifyControl(cfg *ControlSection) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("control.addr: %w", err)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("control.tls_cert_file and control.tls_key_file must be set together")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("control tls file: %w", err)
		}
	}
	return nil
}

func verifyDemo(cfg *DemoSection) error {
	if cfg.Path == "" {
		return nil
	}
	switch cfg.SyncMode {
	case "sync", "batch":
	default:
		return fmt.Errorf("demo.sync_mode %q must be sync or batch", cfg.SyncMode)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return errors.New("cannot create demo directory: " + err.Error())
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}
