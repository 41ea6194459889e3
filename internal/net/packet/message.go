package packet

import (
	"fmt"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// Kind identifies a message type on the wire.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindConnect          // client -> server
	KindAccept           // server -> client
	KindReady            // server -> client
	KindSnapshot         // server -> client
	KindAck              // server -> client
	KindResend           // client -> server
	KindInput            // client -> server
	KindDisconnect       // either direction
)

var kindNames = [...]string{
	KindUnspecified: "unspecified",
	KindConnect:     "connect",
	KindAccept:      "accept",
	KindReady:       "ready",
	KindSnapshot:    "snapshot",
	KindAck:         "ack",
	KindResend:      "resend",
	KindInput:       "input",
	KindDisconnect:  "disconnect",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Handshake reports whether the kind belongs to connection setup or teardown.
// These are the only kinds accepted from slots that are not yet Online.
func (k Kind) Handshake() bool {
	return k == KindAccept || k == KindReady || k == KindDisconnect
}

// Message is implemented by every wire message.
type Message interface {
	Kind() Kind
}

// Connect opens a logical connection.
type Connect struct {
	ProtocolVersion uint32
	Dummy           bool
}

// Accept acknowledges Connect; the client then authenticates.
type Accept struct {
	ClientID uint32
}

// Ready completes the handshake and advertises server capabilities.
type Ready struct {
	DummyAllowed bool

	// MaxDummies is present only when HasMaxDummies is set.
	MaxDummies    uint32
	HasMaxDummies bool
}

// Capabilities converts the handshake into domain capabilities.
func (r Ready) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		DummyAllowed: r.DummyAllowed,
		MaxDummies:   int(r.MaxDummies),
		Extended:     r.HasMaxDummies,
	}
}

// Snapshot carries one game-state update.
//
// PrevTick is the tick the server sent immediately before this one on the
// same connection (NoTick for the first). BaseTick is the delta baseline or
// NoTick for a full snapshot. Size and Checksum describe the reconstructed
// state, not the wire payload.
type Snapshot struct {
	Tick       domain.Tick
	PrevTick   domain.Tick
	BaseTick   domain.Tick
	Size       uint32
	Checksum   uint32
	Compressed bool
	Payload    []byte
}

// IsDelta reports whether Payload is encoded against BaseTick.
func (s Snapshot) IsDelta() bool {
	return s.BaseTick != domain.NoTick
}

// Ack acknowledges client progress up to Tick.
type Ack struct {
	Tick domain.Tick
}

// Resend asks the server to retransmit from FromTick onward.
type Resend struct {
	FromTick domain.Tick
}

// Input is one tick of client input. AckTick reports the newest snapshot
// the client applied on this connection.
type Input struct {
	Tick    domain.Tick
	AckTick domain.Tick
	Fresh   bool
	Payload []byte
}

// Disconnect closes the logical connection.
type Disconnect struct {
	Reason string
}

func (Connect) Kind() Kind    { return KindConnect }
func (Accept) Kind() Kind     { return KindAccept }
func (Ready) Kind() Kind      { return KindReady }
func (Snapshot) Kind() Kind   { return KindSnapshot }
func (Ack) Kind() Kind        { return KindAck }
func (Resend) Kind() Kind     { return KindResend }
func (Input) Kind() Kind      { return KindInput }
func (Disconnect) Kind() Kind { return KindDisconnect }

// InputFromFrame builds the wire message for a scheduled input frame.
func InputFromFrame(f domain.InputFrame, ackTick domain.Tick) Input {
	return Input{Tick: f.Tick, AckTick: ackTick, Fresh: f.Fresh, Payload: f.Payload}
}
