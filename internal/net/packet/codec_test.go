package packet

import (
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"connect main", Connect{ProtocolVersion: 7}},
		{"connect dummy", Connect{ProtocolVersion: 7, Dummy: true}},
		{"accept", Accept{ClientID: 42}},
		{"ready legacy", Ready{DummyAllowed: true}},
		{"ready extended", Ready{DummyAllowed: true, MaxDummies: 3, HasMaxDummies: true}},
		{"ready extended zero", Ready{HasMaxDummies: true}},
		{"full snapshot", Snapshot{Tick: 0, PrevTick: domain.NoTick, BaseTick: domain.NoTick, Size: 3, Checksum: 0xdeadbeef, Payload: []byte{1, 2, 3}}},
		{"delta snapshot", Snapshot{Tick: 12, PrevTick: 11, BaseTick: 9, Size: 2, Checksum: 1, Compressed: true, Payload: []byte{9, 9}}},
		{"ack", Ack{Tick: 100}},
		{"resend", Resend{FromTick: 5}},
		{"input", Input{Tick: 3, AckTick: domain.NoTick, Fresh: true, Payload: []byte("wasd")}},
		{"disconnect", Disconnect{Reason: "kicked"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if PeekKind(data) != tt.msg.Kind() {
				t.Errorf("PeekKind = %s, want %s", PeekKind(data), tt.msg.Kind())
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("Decode = %#v, want %#v", got, tt.msg)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown kind", []byte{0xee}},
		{"truncated varint", []byte{byte(KindAck), 0x30, 0x80}},
		{"truncated bytes", []byte{byte(KindInput), 0x62, 0x05, 'a'}},
		{"snapshot without tick", []byte{byte(KindSnapshot)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, domain.ErrMalformedPacket) {
				t.Errorf("Decode error = %v, want ErrMalformedPacket", err)
			}
		})
	}
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	data, _ := Encode(Ack{Tick: 8})
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != (Ack{Tick: 8}) {
		t.Errorf("Decode = %#v", got)
	}
}

func TestReady_Capabilities(t *testing.T) {
	tests := []struct {
		ready Ready
		limit int
	}{
		{Ready{}, 0},
		{Ready{DummyAllowed: true}, 1},
		{Ready{DummyAllowed: true, MaxDummies: 4, HasMaxDummies: true}, 4},
		{Ready{DummyAllowed: true, HasMaxDummies: true}, 0},
	}
	for _, tt := range tests {
		if got := tt.ready.Capabilities().DummyLimit(); got != tt.limit {
			t.Errorf("%+v DummyLimit = %d, want %d", tt.ready, got, tt.limit)
		}
	}
}

func TestKind_Handshake(t *testing.T) {
	for _, k := range []Kind{KindAccept, KindReady, KindDisconnect} {
		if !k.Handshake() {
			t.Errorf("%s.Handshake() = false", k)
		}
	}
	for _, k := range []Kind{KindSnapshot, KindAck, KindInput} {
		if k.Handshake() {
			t.Errorf("%s.Handshake() = true", k)
		}
	}
}

func TestDecode_SnapshotSizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    uint32
		wantErr bool
	}{
		{"at limit", MaxSnapshotSize, false},
		{"over limit", MaxSnapshotSize + 1, true},
		{"256 MiB", 1 << 28, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(Snapshot{
				Tick:       5,
				PrevTick:   4,
				BaseTick:   domain.NoTick,
				Size:       tt.size,
				Compressed: true,
				Payload:    []byte{0x04, 0x22, 0x4d, 0x18},
			})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			_, err = Decode(data)
			if tt.wantErr != errors.Is(err, domain.ErrMalformedPacket) {
				t.Errorf("Decode error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
