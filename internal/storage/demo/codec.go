package demo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// File format constants.
const (
	MagicBytes     = "SMDEMO\x01"
	MagicBytesSize = len(MagicBytes)

	// frame body: crc(4) + kind(1) + slot(4) + tick(8)
	frameFixedSize = 4 + 1 + 4 + 8

	// MaxPayloadSize bounds one frame. Larger lengths are treated as corruption.
	MaxPayloadSize = 4 << 20
)

// Errors for demo files.
var (
	ErrInvalidMagic     = errors.New("demo: invalid magic bytes")
	ErrCorruptedFrame   = errors.New("demo: corrupted frame")
	ErrChecksumMismatch = errors.New("demo: checksum mismatch")
	ErrInvalidKind      = errors.New("demo: invalid frame kind")
)

// Kind tells what a frame holds.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindSnapshot
	KindInput
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindInput:
		return "input"
	case KindEvent:
		return "event"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Frame is one recorded item.
type Frame struct {
	Kind    Kind
	Slot    domain.SlotID
	Tick    domain.Tick
	Payload []byte
}

// SnapshotFrame records an applied snapshot.
func SnapshotFrame(slot domain.SlotID, snap domain.Snapshot) Frame {
	return Frame{Kind: KindSnapshot, Slot: slot, Tick: snap.Tick, Payload: snap.Payload}
}

// InputFrame records an emitted input frame.
func InputFrame(f domain.InputFrame) Frame {
	return Frame{Kind: KindInput, Slot: f.SlotID, Tick: f.Tick, Payload: f.Payload}
}

func encodeFrame(f Frame) ([]byte, error) {
	switch f.Kind {
	case KindSnapshot, KindInput, KindEvent:
	default:
		return nil, ErrInvalidKind
	}
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("demo: payload too large: %d bytes", len(f.Payload))
	}

	length := uint32(frameFixedSize + len(f.Payload))
	out := make([]byte, 4+int(length))
	binary.BigEndian.PutUint32(out[0:4], length)

	body := out[8:]
	body[0] = byte(f.Kind)
	binary.BigEndian.PutUint32(body[1:5], uint32(f.Slot))
	binary.BigEndian.PutUint64(body[5:13], uint64(f.Tick))
	copy(body[13:], f.Payload)

	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(body))
	return out, nil
}

// decodeFrame parses [crc32:4][kind:1][slot:4][tick:8][payload...].
func decodeFrame(frame []byte) (Frame, error) {
	if len(frame) < frameFixedSize {
		return Frame{}, ErrCorruptedFrame
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Frame{}, ErrChecksumMismatch
	}

	kind := Kind(body[0])
	switch kind {
	case KindSnapshot, KindInput, KindEvent:
	default:
		return Frame{}, ErrInvalidKind
	}

	return Frame{
		Kind:    kind,
		Slot:    domain.SlotID(binary.BigEndian.Uint32(body[1:5])),
		Tick:    domain.Tick(binary.BigEndian.Uint64(body[5:13])),
		Payload: body[13:],
	}, nil
}
