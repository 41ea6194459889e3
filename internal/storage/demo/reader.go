package demo

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// Reader reads frames from a demo file in write order.
type Reader struct {
	file      *os.File
	reader    *bufio.Reader
	truncated bool
	done      bool
}

// Open opens a demo file and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:   f,
		reader: bufio.NewReader(f),
	}

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(r.reader, magic); err != nil {
		f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrInvalidMagic
		}
		return nil, fmt.Errorf("demo: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		f.Close()
		return nil, ErrInvalidMagic
	}
	return r, nil
}

// Read returns the next frame, or io.EOF at the end of the file.
//
// A short or corrupt frame ends the stream: everything after it is
// unreachable without a valid length prefix.
func (r *Reader) Read() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.reader, lenBuf[:]); err != nil {
		return Frame{}, r.stop(err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < frameFixedSize || length > frameFixedSize+MaxPayloadSize {
		return Frame{}, r.stop(ErrCorruptedFrame)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r.reader, frame); err != nil {
		return Frame{}, r.stop(err)
	}

	f, err := decodeFrame(frame)
	if err != nil {
		return Frame{}, r.stop(err)
	}
	return f, nil
}

func (r *Reader) stop(err error) error {
	r.done = true
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, ErrCorruptedFrame),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrInvalidKind):
		r.truncated = true
		return io.EOF
	}
	return err
}

// ReadAll reads every remaining frame.
func (r *Reader) ReadAll() ([]Frame, error) {
	var out []Frame
	for {
		f, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, f)
	}
}

// Truncated reports whether reading stopped on a torn or corrupt frame.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// SlotSummary aggregates one slot's frames.
type SlotSummary struct {
	Slot      domain.SlotID `json:"slot_id"`
	Snapshots int           `json:"snapshots"`
	Inputs    int           `json:"inputs"`
	Events    int           `json:"events"`
	FirstTick domain.Tick   `json:"first_tick"`
	LastTick  domain.Tick   `json:"last_tick"`
}

// Summary describes a whole demo file.
type Summary struct {
	Frames    int           `json:"frames"`
	Truncated bool          `json:"truncated"`
	Slots     []SlotSummary `json:"slots"`
}

// Summarize reads the file at path and aggregates it per slot, ordered by
// first appearance.
func Summarize(path string) (*Summary, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sum := &Summary{}
	index := make(map[domain.SlotID]int)
	for {
		f, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		sum.Frames++

		i, ok := index[f.Slot]
		if !ok {
			i = len(sum.Slots)
			index[f.Slot] = i
			sum.Slots = append(sum.Slots, SlotSummary{Slot: f.Slot, FirstTick: f.Tick, LastTick: f.Tick})
		}
		s := &sum.Slots[i]
		switch f.Kind {
		case KindSnapshot:
			s.Snapshots++
		case KindInput:
			s.Inputs++
		case KindEvent:
			s.Events++
		}
		s.FirstTick = min(s.FirstTick, f.Tick)
		s.LastTick = max(s.LastTick, f.Tick)
	}
	sum.Truncated = r.Truncated()
	return sum, nil
}
