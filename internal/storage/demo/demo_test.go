package demo

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("x.demo")
	if cfg.Path != "x.demo" {
		t.Fatalf("Path = %q, want %q", cfg.Path, "x.demo")
	}
	if cfg.SyncMode != SyncModeBatch {
		t.Fatalf("SyncMode = %q, want %q", cfg.SyncMode, SyncModeBatch)
	}
	if cfg.BatchCount != DefaultBatchCount {
		t.Fatalf("BatchCount = %d, want %d", cfg.BatchCount, DefaultBatchCount)
	}
}

func writeFrames(t *testing.T, path string, frames []Frame) {
	t.Helper()

	w, err := NewWriter(Config{Path: path, SyncMode: SyncModeSync, BatchCount: 2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i, f := range frames {
		if err := w.Append(f); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Frames() != int64(len(frames)) {
		t.Fatalf("Frames() = %d, want %d", w.Frames(), len(frames))
	}
}

func sampleFrames() []Frame {
	return []Frame{
		SnapshotFrame(0, domain.Snapshot{Tick: 10, Payload: []byte("world-10")}),
		InputFrame(domain.InputFrame{Tick: 11, SlotID: 0, Payload: []byte{1, 2}, Fresh: true}),
		InputFrame(domain.InputFrame{Tick: 11, SlotID: 1, Payload: []byte{3}}),
		SnapshotFrame(1, domain.Snapshot{Tick: 12, Payload: nil}),
		{Kind: KindEvent, Slot: 1, Tick: 13, Payload: []byte("removed")},
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "session.demo")
	want := sampleFrames()
	writeFrames(t, path, want)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len(frames) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i].Kind || got[i].Slot != want[i].Slot || got[i].Tick != want[i].Tick {
			t.Errorf("frame %d = %+v, want %+v", i, got[i], want[i])
		}
		if !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("frame %d payload = %q, want %q", i, got[i].Payload, want[i].Payload)
		}
	}
	if r.Truncated() {
		t.Error("clean file reported as truncated")
	}
}

func TestReader_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.demo")
	writeFrames(t, path, sampleFrames())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0600); err != nil {
		t.Fatal(err)
	}

	sum, err := Summarize(path)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Frames != len(sampleFrames())-1 {
		t.Errorf("Frames = %d, want %d", sum.Frames, len(sampleFrames())-1)
	}
	if !sum.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestReader_CorruptChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.demo")
	writeFrames(t, path, sampleFrames()[:2])

	data, _ := os.ReadFile(path)
	// Flip a payload byte of the first frame.
	data[MagicBytesSize+8+frameFixedSize-4] ^= 0xff
	_ = os.WriteFile(path, data, 0600)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	frames, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frames) != 0 || !r.Truncated() {
		t.Errorf("frames = %d truncated = %v, want 0 true", len(frames), r.Truncated())
	}
}

func TestOpen_InvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.demo")
	_ = os.WriteFile(path, []byte("not a demo file"), 0600)

	if _, err := Open(path); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Open error = %v, want ErrInvalidMagic", err)
	}
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.demo")
	writeFrames(t, path, sampleFrames())

	sum, err := Summarize(path)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Frames != 5 || len(sum.Slots) != 2 {
		t.Fatalf("Summary = %+v", sum)
	}

	s0, s1 := sum.Slots[0], sum.Slots[1]
	if s0.Slot != 0 || s0.Snapshots != 1 || s0.Inputs != 1 || s0.FirstTick != 10 || s0.LastTick != 11 {
		t.Errorf("slot 0 = %+v", s0)
	}
	if s1.Slot != 1 || s1.Snapshots != 1 || s1.Inputs != 1 || s1.FirstTick != 11 || s1.LastTick != 13 {
		t.Errorf("slot 1 = %+v", s1)
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := NewWriter(DefaultConfig(filepath.Join(t.TempDir(), "c.demo")))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(sampleFrames()[0]); err == nil {
		t.Error("Append after Close succeeded")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEncodeFrame_InvalidKind(t *testing.T) {
	if _, err := encodeFrame(Frame{Kind: KindUnspecified}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("encodeFrame error = %v, want ErrInvalidKind", err)
	}
}
