package packet

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// MaxPacketSize bounds a single datagram.
const MaxPacketSize = 64 << 10

// Field numbers. They are shared across messages; each message uses a subset.
const (
	fieldVersion    protowire.Number = 1
	fieldDummy      protowire.Number = 2
	fieldClientID   protowire.Number = 3
	fieldAllowed    protowire.Number = 4
	fieldMaxDummies protowire.Number = 5
	fieldTick       protowire.Number = 6
	fieldPrevTick   protowire.Number = 7
	fieldBaseTick   protowire.Number = 8
	fieldSize       protowire.Number = 9
	fieldChecksum   protowire.Number = 10
	fieldCompressed protowire.Number = 11
	fieldPayload    protowire.Number = 12
	fieldFresh      protowire.Number = 13
	fieldReason     protowire.Number = 14
	fieldAckTick    protowire.Number = 15
)

// Encode serializes a message.
func Encode(m Message) ([]byte, error) {
	b := make([]byte, 1, 32)
	b[0] = byte(m.Kind())

	switch v := m.(type) {
	case Connect:
		b = appendUint(b, fieldVersion, uint64(v.ProtocolVersion))
		b = appendBool(b, fieldDummy, v.Dummy)
	case Accept:
		b = appendUint(b, fieldClientID, uint64(v.ClientID))
	case Ready:
		b = appendBool(b, fieldAllowed, v.DummyAllowed)
		if v.HasMaxDummies {
			b = protowire.AppendTag(b, fieldMaxDummies, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(v.MaxDummies))
		}
	case Snapshot:
		b = appendTick(b, fieldTick, v.Tick)
		b = appendTick(b, fieldPrevTick, v.PrevTick)
		b = appendTick(b, fieldBaseTick, v.BaseTick)
		b = appendUint(b, fieldSize, uint64(v.Size))
		b = protowire.AppendTag(b, fieldChecksum, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, v.Checksum)
		b = appendBool(b, fieldCompressed, v.Compressed)
		b = appendBytes(b, fieldPayload, v.Payload)
	case Ack:
		b = appendTick(b, fieldTick, v.Tick)
	case Resend:
		b = appendTick(b, fieldTick, v.FromTick)
	case Input:
		b = appendTick(b, fieldTick, v.Tick)
		b = appendTick(b, fieldAckTick, v.AckTick)
		b = appendBool(b, fieldFresh, v.Fresh)
		b = appendBytes(b, fieldPayload, v.Payload)
	case Disconnect:
		if v.Reason != "" {
			b = protowire.AppendTag(b, fieldReason, protowire.BytesType)
			b = protowire.AppendString(b, v.Reason)
		}
	default:
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("cannot encode %T", m))
	}

	if len(b) > MaxPacketSize {
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("%s packet too large: %d bytes", m.Kind(), len(b)))
	}
	return b, nil
}

// Decode parses a datagram. Byte slices in the result alias data.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, domain.ErrMalformedPacket.WithDetails("empty packet")
	}
	if len(data) > MaxPacketSize {
		return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("packet too large: %d bytes", len(data)))
	}

	kind := Kind(data[0])
	var f fields
	if err := f.parse(data[1:]); err != nil {
		return nil, domain.ErrMalformedPacket.WithDetails(kind.String()).WithCause(err)
	}

	switch kind {
	case KindConnect:
		return Connect{ProtocolVersion: uint32(f.uint(fieldVersion)), Dummy: f.uint(fieldDummy) != 0}, nil
	case KindAccept:
		return Accept{ClientID: uint32(f.uint(fieldClientID))}, nil
	case KindReady:
		_, has := f.varints[fieldMaxDummies]
		return Ready{
			DummyAllowed:  f.uint(fieldAllowed) != 0,
			MaxDummies:    uint32(f.uint(fieldMaxDummies)),
			HasMaxDummies: has,
		}, nil
	case KindSnapshot:
		if _, ok := f.varints[fieldTick]; !ok {
			return nil, domain.ErrMalformedPacket.WithDetails("snapshot without tick")
		}
		if size := f.uint(fieldSize); size > MaxSnapshotSize {
			return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("snapshot size %d exceeds %d", size, MaxSnapshotSize))
		}
		return Snapshot{
			Tick:       f.tick(fieldTick),
			PrevTick:   f.tick(fieldPrevTick),
			BaseTick:   f.tick(fieldBaseTick),
			Size:       uint32(f.uint(fieldSize)),
			Checksum:   f.checksum,
			Compressed: f.uint(fieldCompressed) != 0,
			Payload:    f.payload,
		}, nil
	case KindAck:
		return Ack{Tick: f.tick(fieldTick)}, nil
	case KindResend:
		return Resend{FromTick: f.tick(fieldTick)}, nil
	case KindInput:
		return Input{Tick: f.tick(fieldTick), AckTick: f.tick(fieldAckTick), Fresh: f.uint(fieldFresh) != 0, Payload: f.payload}, nil
	case KindDisconnect:
		return Disconnect{Reason: f.reason}, nil
	}
	return nil, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("unknown kind %d", uint8(kind)))
}

// PeekKind returns the kind byte without decoding the body.
func PeekKind(data []byte) Kind {
	if len(data) == 0 {
		return KindUnspecified
	}
	return Kind(data[0])
}

type fields struct {
	varints  map[protowire.Number]uint64
	checksum uint32
	payload  []byte
	reason   string
}

func (f *fields) parse(b []byte) error {
	f.varints = make(map[protowire.Number]uint64, 8)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.varints[num] = v
			b = b[n:]
		case num == fieldChecksum && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.checksum = v
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.payload = v
			b = b[n:]
		case num == fieldReason && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.reason = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (f *fields) uint(num protowire.Number) uint64 {
	return f.varints[num]
}

// tick decodes a zigzag tick. Absent ticks read as NoTick.
func (f *fields) tick(num protowire.Number) domain.Tick {
	v, ok := f.varints[num]
	if !ok {
		return domain.NoTick
	}
	return domain.Tick(protowire.DecodeZigZag(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendTick always writes the field so that tick 0 and NoTick stay distinct.
func appendTick(b []byte, num protowire.Number, t domain.Tick) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(t)))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
