package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SlotState
		want     bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateAuthenticating, true},
		{StateAuthenticating, StateOnline, true},
		{StateOnline, StateDisconnected, true},
		{StateOnline, StateError, true},
		{StateConnecting, StateError, true},
		{StateAuthenticating, StateDisconnected, true},

		{StateDisconnected, StateOnline, false},
		{StateConnecting, StateOnline, false},
		{StateOnline, StateConnecting, false},
		{StateDisconnected, StateError, false},
		{StateError, StateDisconnected, false},
		{StateError, StateConnecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConnectionSlot_Transition(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewConnectionSlot(3, "127.0.0.1:8303", 7, now)

	if s.State != StateConnecting {
		t.Fatalf("new slot state = %s, want connecting", s.State)
	}
	if err := s.Transition(StateOnline); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skip to online: err = %v, want ErrInvalidTransition", err)
	}
	for _, to := range []SlotState{StateAuthenticating, StateOnline, StateError} {
		if err := s.Transition(to); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
	}
	if err := s.Transition(StateDisconnected); err == nil {
		t.Error("error state must be terminal")
	}
}

func TestConnectionSlot_Ack(t *testing.T) {
	start := time.Unix(100, 0)
	s := NewConnectionSlot(0, "srv", 1, start)

	if s.AckedTick != NoTick {
		t.Fatalf("AckedTick = %d, want NoTick", s.AckedTick)
	}
	if !s.Ack(10, start.Add(time.Second)) {
		t.Error("first ack should advance")
	}
	if s.Ack(5, start.Add(2*time.Second)) {
		t.Error("older ack must not move the marker back")
	}
	if s.AckedTick != 10 {
		t.Errorf("AckedTick = %d, want 10", s.AckedTick)
	}
	if !s.LastAckAt.Equal(start.Add(2 * time.Second)) {
		t.Error("any ack should refresh the deadline")
	}
	if s.AckOverdue(start.Add(3*time.Second), 2*time.Second) {
		t.Error("ack within deadline reported overdue")
	}
	if !s.AckOverdue(start.Add(5*time.Second), 2*time.Second) {
		t.Error("silent slot not reported overdue")
	}
	if s.AckOverdue(start.Add(time.Hour), 0) {
		t.Error("zero deadline disables the check")
	}
}

func TestCapabilities_DummyLimit(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want int
	}{
		{"nothing", Capabilities{}, 0},
		{"legacy allowed", Capabilities{DummyAllowed: true}, 1},
		{"extended overrides legacy", Capabilities{DummyAllowed: true, Extended: true, MaxDummies: 4}, 4},
		{"extended zero", Capabilities{DummyAllowed: true, Extended: true}, 0},
		{"extended negative", Capabilities{Extended: true, MaxDummies: -2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.caps.DummyLimit(); got != tt.want {
				t.Errorf("DummyLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInputFrame_Replay(t *testing.T) {
	f := InputFrame{Tick: 4, SlotID: 2, Payload: []byte{1, 2}, Fresh: true}
	r := f.Replay(5)

	if r.Tick != 5 || r.SlotID != 2 || r.Fresh {
		t.Errorf("Replay() = %+v", r)
	}
	r.Payload[0] = 9
	if f.Payload[0] != 1 {
		t.Error("replayed payload must not alias the original")
	}
}
