package config

import "time"

// Default configuration values.
const (
	DefaultServerAddr      = "127.0.0.1:8303"
	DefaultProtocolVersion = 7

	DefaultTickInterval        = 20 * time.Millisecond
	DefaultAckTimeout          = 10 * time.Second
	DefaultSnapshotCapacity    = 128
	DefaultInputQueueSize      = 64
	DefaultMaxPendingSnapshots = 32
	DefaultGapTimeout          = 250 * time.Millisecond
	DefaultResendRate          = 4.0
	DefaultResendBurst         = 1
	DefaultReconnectInterval   = 2 * time.Second
	DefaultInboundBuffer       = 1024

	DefaultControlAddr = "127.0.0.1:5380"

	DefaultDemoSyncMode     = "batch"
	DefaultDemoSyncInterval = time.Second
	DefaultDemoBatchCount   = 256
	DefaultDemoBatchBytes   = 1 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// MaxDummies bounds session.requested_dummies regardless of what the
// server advertises.
const MaxDummies = 64

// Default returns the default client configuration.
func Default() *ClientConfig {
	return &ClientConfig{
		Server: ServerSection{
			Addr:            DefaultServerAddr,
			ProtocolVersion: DefaultProtocolVersion,
		},
		Session: SessionSection{
			TickInterval:        DefaultTickInterval,
			AckTimeout:          DefaultAckTimeout,
			SnapshotCapacity:    DefaultSnapshotCapacity,
			InputQueueSize:      DefaultInputQueueSize,
			MaxPendingSnapshots: DefaultMaxPendingSnapshots,
			GapTimeout:          DefaultGapTimeout,
			ResendRate:          DefaultResendRate,
			ResendBurst:         DefaultResendBurst,
			ReconnectInterval:   DefaultReconnectInterval,
			AutoReconnect:       true,
			InboundBuffer:       DefaultInboundBuffer,
		},
		Control: ControlSection{
			Enabled: true,
			Addr:    DefaultControlAddr,
		},
		Demo: DemoSection{
			SyncMode:     DefaultDemoSyncMode,
			SyncInterval: DefaultDemoSyncInterval,
			BatchCount:   DefaultDemoBatchCount,
			BatchBytes:   DefaultDemoBatchBytes,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
