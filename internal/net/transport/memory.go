package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// Memory is an in-process Transport. Sent datagrams are recorded per slot
// and inbound datagrams are injected with Deliver.
type Memory struct {
	mu      sync.Mutex
	open    map[domain.SlotID]string
	sent    map[domain.SlotID][][]byte
	inbound chan domain.Datagram
	closed  bool

	// DialErr, when set, is returned by the next Dial.
	DialErr error
}

// NewMemory creates an in-process transport.
func NewMemory(inboundSize int) *Memory {
	if inboundSize <= 0 {
		inboundSize = DefaultInboundSize
	}
	return &Memory{
		open:    make(map[domain.SlotID]string),
		sent:    make(map[domain.SlotID][][]byte),
		inbound: make(chan domain.Datagram, inboundSize),
	}
}

// Dial implements Transport.
func (m *Memory) Dial(_ context.Context, slot domain.SlotID, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := m.DialErr; err != nil {
		m.DialErr = nil
		return err
	}
	if _, ok := m.open[slot]; ok {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("%s already dialed", slot))
	}
	m.open[slot] = addr
	return nil
}

// Send implements Transport.
func (m *Memory) Send(slot domain.SlotID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[slot]; !ok {
		return domain.ErrInvalidSlot.WithDetails(slot.String())
	}
	m.sent[slot] = append(m.sent[slot], append([]byte(nil), data...))
	return nil
}

// Disconnect implements Transport.
func (m *Memory) Disconnect(slot domain.SlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, slot)
	return nil
}

// Inbound implements Transport.
func (m *Memory) Inbound() <-chan domain.Datagram {
	return m.inbound
}

// Deliver injects an inbound datagram. It reports false when the channel is
// full or the transport is closed.
func (m *Memory) Deliver(slot domain.SlotID, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.inbound <- domain.Datagram{Slot: slot, Data: data}:
		return true
	default:
		return false
	}
}

// Fail injects a connection failure for slot.
func (m *Memory) Fail(slot domain.SlotID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.inbound <- domain.Datagram{Slot: slot, Err: err}
	}
}

// IsOpen reports whether slot has a dialed socket.
func (m *Memory) IsOpen(slot domain.SlotID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[slot]
	return ok
}

// Sent returns and clears the datagrams sent on slot.
func (m *Memory) Sent(slot domain.SlotID) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sent[slot]
	delete(m.sent, slot)
	return out
}

// Close implements Transport.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.open = make(map[domain.SlotID]string)
	close(m.inbound)
	return nil
}
