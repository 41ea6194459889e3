package packet

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/spaolacci/murmur3"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

const (
	// CompressThreshold is the payload size below which compression is skipped.
	CompressThreshold = 256

	// MaxSnapshotSize bounds a reconstructed snapshot. It matches the largest
	// frame a demo file accepts.
	MaxSnapshotSize = 4 << 20

	// decompressPrealloc caps the buffer reserved before lz4 has produced
	// any output.
	decompressPrealloc = 64 << 10
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Checksum is the murmur3 hash of a reconstructed snapshot.
func Checksum(state []byte) uint32 {
	return murmur3.Sum32(state)
}

// Compress lz4-frames src. It reports false when compression does not shrink
// the payload, in which case src should be sent as is.
func Compress(src []byte) ([]byte, bool, error) {
	if len(src) < CompressThreshold {
		return src, false, nil
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return nil, false, fmt.Errorf("packet: lz4 write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("packet: lz4 close: %w", err)
	}
	if buf.Len() >= len(src) {
		return src, false, nil
	}
	return bytes.Clone(buf.Bytes()), true, nil
}

// Decompress reverses Compress. size is the expected decompressed length;
// longer output is rejected.
func Decompress(src []byte, size int) ([]byte, error) {
	if size < 0 || size > MaxSnapshotSize {
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("snapshot size %d exceeds %d", size, MaxSnapshotSize))
	}
	out := bytes.NewBuffer(make([]byte, 0, min(size, decompressPrealloc)))
	zr := lz4.NewReader(bytes.NewReader(src))
	n, err := io.Copy(out, io.LimitReader(zr, int64(size)+1))
	if err != nil {
		return nil, domain.ErrMalformedPacket.WithDetails("lz4 payload").WithCause(err)
	}
	if n != int64(size) {
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("lz4 payload decompressed to %d bytes, want %d", n, size))
	}
	return out.Bytes(), nil
}

// WirePayload returns the snapshot payload as sent: decompressed and size
// checked, but still delta encoded when IsDelta.
func (s Snapshot) WirePayload() ([]byte, error) {
	if s.Compressed {
		return Decompress(s.Payload, int(s.Size))
	}
	if len(s.Payload) != int(s.Size) {
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("payload %d bytes, size field %d", len(s.Payload), s.Size))
	}
	return s.Payload, nil
}

// NewSnapshot builds a wire snapshot for state. When base is non-nil the
// payload is delta encoded against it with encode. Compression is applied
// when it helps.
func NewSnapshot(tick, prev, baseTick domain.Tick, state, base []byte, encode func(base, target []byte) []byte) (Snapshot, error) {
	body := state
	if baseTick != domain.NoTick {
		body = encode(base, state)
	}
	payload, compressed, err := Compress(body)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Tick:       tick,
		PrevTick:   prev,
		BaseTick:   baseTick,
		Size:       uint32(len(state)),
		Checksum:   Checksum(state),
		Compressed: compressed,
		Payload:    payload,
	}, nil
}
