package demo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultBatchCount         = 256
	DefaultBatchBytes   int64 = 1 << 20 // 1MB
	DefaultSyncInterval       = time.Second
	DefaultFilePerm           = 0600
	DefaultDirPerm            = 0750
)

// SyncMode defines how the recorder syncs to disk.
type SyncMode string

const (
	SyncModeSync  SyncMode = "sync"
	SyncModeBatch SyncMode = "batch"
)

// Config configures the Writer.
type Config struct {
	Path string

	SyncMode     SyncMode
	SyncInterval time.Duration

	BatchCount int
	BatchBytes int64
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		SyncMode:     SyncModeBatch,
		SyncInterval: DefaultSyncInterval,
		BatchCount:   DefaultBatchCount,
		BatchBytes:   DefaultBatchBytes,
	}
}

// Writer appends frames to a demo file.
//
// Append is called from the session tick loop and only buffers; the disk
// write happens once a batch threshold is hit or on the sync ticker.
type Writer struct {
	cfg Config

	mu          sync.Mutex
	file        *os.File
	buffer      [][]byte
	bufferBytes int64
	frames      int64
	syncTicker  *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	closed      bool
}

// NewWriter creates the demo file, truncating any previous recording.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("demo: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("demo: create dir: %w", err)
	}

	applyDefaults(&cfg)

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("demo: open file: %w", err)
	}
	if _, err := file.Write([]byte(MagicBytes)); err != nil {
		file.Close()
		return nil, fmt.Errorf("demo: write header: %w", err)
	}

	w := &Writer{
		cfg:    cfg,
		file:   file,
		stopCh: make(chan struct{}),
	}
	if cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}
	return w, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeBatch
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.BatchCount == 0 {
		cfg.BatchCount = DefaultBatchCount
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
}

// Append buffers a frame and flushes depending on batch thresholds.
func (w *Writer) Append(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("demo: writer is closed")
	}

	frame, err := encodeFrame(f)
	if err != nil {
		return err
	}

	w.buffer = append(w.buffer, frame)
	w.bufferBytes += int64(len(frame))

	if len(w.buffer) >= w.cfg.BatchCount || w.bufferBytes >= w.cfg.BatchBytes {
		return w.flushLocked()
	}
	return nil
}

// Frames returns the number of frames written to disk so far.
func (w *Writer) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Flush writes buffered frames to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if w.file == nil {
		return fmt.Errorf("demo: file not open")
	}
	if len(w.buffer) == 0 {
		if w.cfg.SyncMode == SyncModeSync {
			return w.file.Sync()
		}
		return nil
	}

	var buf bytes.Buffer
	for _, frame := range w.buffer {
		buf.Write(frame)
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("demo: write batch: %w", err)
	}

	w.frames += int64(len(w.buffer))
	w.buffer = nil
	w.bufferBytes = 0

	if w.cfg.SyncMode == SyncModeSync {
		return w.file.Sync()
	}
	return nil
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				_ = w.Flush()
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Close flushes pending frames and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		w.file = nil
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		w.file = nil
		return fmt.Errorf("demo: sync: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("demo: close: %w", err)
	}
	return nil
}
