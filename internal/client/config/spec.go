package config

import "time"

// ClientConfig is the root configuration for slotmesh.
type ClientConfig struct {
	Server  ServerSection  `koanf:"server"`
	Session SessionSection `koanf:"session"`
	Control ControlSection `koanf:"control"`
	Demo    DemoSection    `koanf:"demo"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection names the game server every slot connects to.
type ServerSection struct {
	Addr            string `koanf:"addr"`
	ProtocolVersion uint32 `koanf:"protocol_version"`
}

// SessionSection tunes the session loop.
type SessionSection struct {
	TickInterval time.Duration `koanf:"tick_interval"`

	// AckTimeout fails a silent slot. Negative disables the check.
	AckTimeout time.Duration `koanf:"ack_timeout"`

	// RequestedDummies may be changed at runtime by editing the file.
	RequestedDummies int `koanf:"requested_dummies"`

	SnapshotCapacity    int           `koanf:"snapshot_capacity"`
	InputQueueSize      int           `koanf:"input_queue_size"`
	MaxPendingSnapshots int           `koanf:"max_pending_snapshots"`
	GapTimeout          time.Duration `koanf:"gap_timeout"`

	// ResendRate is resend requests per second per slot.
	ResendRate  float64 `koanf:"resend_rate"`
	ResendBurst int     `koanf:"resend_burst"`

	ReconnectInterval time.Duration `koanf:"reconnect_interval"`
	AutoReconnect     bool          `koanf:"auto_reconnect"`

	// InboundBuffer bounds datagrams waiting for the loop across all slots.
	InboundBuffer int `koanf:"inbound_buffer"`

	// ReadBuffer is the per-socket kernel receive buffer in bytes; 0 keeps
	// the OS default.
	ReadBuffer int `koanf:"read_buffer"`
}

// ControlSection configures the local control HTTP server.
type ControlSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`

	// Token, when set, is required as a bearer token on every /v1 request.
	Token string `koanf:"token"`

	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// DemoSection configures the demo recorder. An empty Path disables it.
type DemoSection struct {
	Path         string        `koanf:"path"`
	SyncMode     string        `koanf:"sync_mode"`
	SyncInterval time.Duration `koanf:"sync_interval"`
	BatchCount   int           `koanf:"batch_count"`
	BatchBytes   int           `koanf:"batch_bytes"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
