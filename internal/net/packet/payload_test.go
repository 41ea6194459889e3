package packet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

func xorEncode(base, target []byte) []byte {
	out := make([]byte, len(target))
	for i := range target {
		out[i] = target[i]
		if i < len(base) {
			out[i] ^= base[i]
		}
	}
	return out
}

func TestCompress_RoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("entity-state;"), 100)

	out, compressed, err := Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !compressed || len(out) >= len(src) {
		t.Fatalf("repetitive payload not compressed: %d -> %d", len(src), len(out))
	}

	back, err := Decompress(out, len(src))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, src) {
		t.Error("round trip mismatch")
	}

	if _, err := Decompress(out, len(src)-1); !errors.Is(err, domain.ErrMalformedPacket) {
		t.Errorf("Decompress with short size error = %v, want ErrMalformedPacket", err)
	}
}

func TestCompress_SmallPayloadUntouched(t *testing.T) {
	src := []byte("tiny")
	out, compressed, err := Compress(src)
	if err != nil || compressed || !bytes.Equal(out, src) {
		t.Errorf("Compress(tiny) = %q, %v, %v", out, compressed, err)
	}
}

func TestNewSnapshot_WirePayload(t *testing.T) {
	base := bytes.Repeat([]byte{7}, 1024)
	state := bytes.Repeat([]byte{7}, 1024)
	state[10] = 1

	snap, err := NewSnapshot(5, 4, 3, state, base, xorEncode)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if !snap.IsDelta() || !snap.Compressed {
		t.Fatalf("snapshot delta=%v compressed=%v", snap.IsDelta(), snap.Compressed)
	}
	if snap.Checksum != Checksum(state) || snap.Size != uint32(len(state)) {
		t.Errorf("checksum/size mismatch: %d %d", snap.Checksum, snap.Size)
	}

	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	body, err := msg.(Snapshot).WirePayload()
	if err != nil {
		t.Fatalf("WirePayload: %v", err)
	}
	if !bytes.Equal(xorEncode(base, body), state) {
		t.Error("reconstructed state mismatch")
	}
}

func TestWirePayload_SizeMismatch(t *testing.T) {
	s := Snapshot{Tick: 1, BaseTick: domain.NoTick, Size: 10, Payload: []byte{1}}
	if _, err := s.WirePayload(); !errors.Is(err, domain.ErrMalformedPacket) {
		t.Errorf("WirePayload error = %v, want ErrMalformedPacket", err)
	}
}

func TestWirePayload_OversizedSize(t *testing.T) {
	payload, compressed, err := Compress(bytes.Repeat([]byte("x"), 1024))
	if err != nil || !compressed {
		t.Fatalf("Compress: compressed=%v err=%v", compressed, err)
	}

	tests := []struct {
		name string
		size uint32
	}{
		{"just over limit", MaxSnapshotSize + 1},
		{"256 MiB", 1 << 28},
		{"max uint32", ^uint32(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{Tick: 1, BaseTick: domain.NoTick, Size: tt.size, Compressed: true, Payload: payload}
			if _, err := s.WirePayload(); !errors.Is(err, domain.ErrMalformedPacket) {
				t.Errorf("WirePayload error = %v, want ErrMalformedPacket", err)
			}
		})
	}
}
