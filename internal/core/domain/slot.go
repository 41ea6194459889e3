package domain

import (
	"fmt"
	"time"
)

// SlotID identifies one connection for the lifetime of a registry.
// Ids are handed out densely and never reused.
type SlotID uint32

// String formats the id for logs.
func (id SlotID) String() string {
	return fmt.Sprintf("slot-%d", uint32(id))
}

// SlotState is the protocol state of a ConnectionSlot.
type SlotState uint8

const (
	StateDisconnected SlotState = iota
	StateConnecting
	StateAuthenticating
	StateOnline
	StateError
)

var slotStateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateOnline:         "online",
	StateError:          "error",
}

// String returns the lowercase state name.
func (s SlotState) String() string {
	if int(s) < len(slotStateNames) {
		return slotStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s SlotState) Terminal() bool {
	return s == StateError
}

// Live reports whether a slot in this state occupies a registry position.
func (s SlotState) Live() bool {
	return s == StateConnecting || s == StateAuthenticating || s == StateOnline
}

// CanTransition reports whether from -> to is allowed.
//
// The happy path is Disconnected -> Connecting -> Authenticating -> Online.
// Any live state may drop to Disconnected or fail into Error.
func CanTransition(from, to SlotState) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateConnecting:
		return from == StateDisconnected
	case StateAuthenticating:
		return from == StateConnecting
	case StateOnline:
		return from == StateAuthenticating
	case StateDisconnected, StateError:
		return from.Live()
	}
	return false
}

// Capabilities is what the server advertised on the main connection's handshake.
type Capabilities struct {
	// DummyAllowed is the legacy single-dummy flag.
	DummyAllowed bool `json:"dummy_allowed"`

	// MaxDummies is only meaningful when Extended is set.
	MaxDummies int `json:"max_dummies"`

	// Extended is set when the server sent an explicit dummy limit.
	Extended bool `json:"extended"`
}

// DummyLimit returns how many dummies the server accepts next to the main slot.
func (c Capabilities) DummyLimit() int {
	if c.Extended {
		if c.MaxDummies < 0 {
			return 0
		}
		return c.MaxDummies
	}
	if c.DummyAllowed {
		return 1
	}
	return 0
}

// ConnectionSlot is one logical connection: the main player or a dummy.
type ConnectionSlot struct {
	ID              SlotID       `json:"id"`
	State           SlotState    `json:"-"`
	ProtocolVersion uint32       `json:"protocol_version"`
	ServerAddress   string       `json:"server_address"`
	Capabilities    Capabilities `json:"capabilities"`
	Main            bool         `json:"main"`

	CreatedAt time.Time `json:"created_at"`

	// LastAckAt is refreshed by every ack and starts at CreatedAt.
	LastAckAt time.Time `json:"last_ack_at"`

	// AckedTick is the highest tick the server acknowledged.
	AckedTick Tick `json:"acked_tick"`
}

// NewConnectionSlot returns a slot in StateConnecting.
func NewConnectionSlot(id SlotID, serverAddress string, protocolVersion uint32, now time.Time) *ConnectionSlot {
	return &ConnectionSlot{
		ID:              id,
		State:           StateConnecting,
		ProtocolVersion: protocolVersion,
		ServerAddress:   serverAddress,
		CreatedAt:       now,
		LastAckAt:       now,
		AckedTick:       NoTick,
	}
}

// Transition moves the slot to the given state.
func (s *ConnectionSlot) Transition(to SlotState) error {
	if !CanTransition(s.State, to) {
		return ErrInvalidTransition.WithDetails(fmt.Sprintf("%s: %s -> %s", s.ID, s.State, to))
	}
	s.State = to
	return nil
}

// Ack records a server acknowledgment. AckedTick never moves backwards.
func (s *ConnectionSlot) Ack(tick Tick, now time.Time) bool {
	s.LastAckAt = now
	if tick <= s.AckedTick {
		return false
	}
	s.AckedTick = tick
	return true
}

// AckOverdue reports whether the slot has been silent longer than deadline.
func (s *ConnectionSlot) AckOverdue(now time.Time, deadline time.Duration) bool {
	if deadline <= 0 {
		return false
	}
	return now.Sub(s.LastAckAt) > deadline
}

// Clone returns a copy safe to hand out of the registry.
func (s *ConnectionSlot) Clone() *ConnectionSlot {
	c := *s
	return &c
}
