package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc
}

func receive(t *testing.T, ch <-chan domain.Datagram) domain.Datagram {
	t.Helper()
	select {
	case dg := <-ch:
		return dg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
	return domain.Datagram{}
}

func TestUDP_PerSlotSockets(t *testing.T) {
	server := listenUDP(t)
	u := NewUDP(UDPConfig{Logger: logger.Discard()})
	defer u.Close()

	ctx := context.Background()
	for _, slot := range []domain.SlotID{0, 1} {
		if err := u.Dial(ctx, slot, server.LocalAddr().String()); err != nil {
			t.Fatalf("Dial(%d): %v", slot, err)
		}
	}
	if err := u.Dial(ctx, 1, server.LocalAddr().String()); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("second Dial error = %v, want ErrInvalidArgument", err)
	}

	// The server answers each client on the source address it saw, which
	// must differ per slot.
	peers := make(map[string]bool)
	buf := make([]byte, 64)
	for _, slot := range []domain.SlotID{0, 1} {
		if err := u.Send(slot, []byte{byte(slot)}); err != nil {
			t.Fatalf("Send(%d): %v", slot, err)
		}
		_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, from, err := server.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("server read: %v", err)
		}
		peers[from.String()] = true
		if _, err := server.WriteToUDP(append([]byte("echo"), buf[:n]...), from); err != nil {
			t.Fatalf("server write: %v", err)
		}

		dg := receive(t, u.Inbound())
		if dg.Slot != slot || string(dg.Data) != "echo"+string([]byte{byte(slot)}) {
			t.Errorf("inbound = %+v, want echo on %s", dg, slot)
		}
	}
	if len(peers) != 2 {
		t.Errorf("server saw %d peers, want 2", len(peers))
	}
}

func TestUDP_DisconnectOnlyThatSlot(t *testing.T) {
	server := listenUDP(t)
	u := NewUDP(UDPConfig{Logger: logger.Discard()})
	defer u.Close()

	addr := server.LocalAddr().String()
	_ = u.Dial(context.Background(), 0, addr)
	_ = u.Dial(context.Background(), 1, addr)

	if err := u.Disconnect(1); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := u.Send(1, []byte("x")); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("Send on closed slot error = %v, want ErrInvalidSlot", err)
	}
	if err := u.Send(0, []byte("x")); err != nil {
		t.Errorf("Send on open slot: %v", err)
	}
	if err := u.Disconnect(1); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
}

func TestUDP_CloseClosesInbound(t *testing.T) {
	server := listenUDP(t)
	u := NewUDP(UDPConfig{Logger: logger.Discard()})
	_ = u.Dial(context.Background(), 0, server.LocalAddr().String())

	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-u.Inbound(); ok {
		t.Error("inbound channel still open")
	}
	if err := u.Dial(context.Background(), 2, server.LocalAddr().String()); !errors.Is(err, ErrClosed) {
		t.Errorf("Dial after Close error = %v, want ErrClosed", err)
	}
}

func TestUDP_DropsWhenInboundFull(t *testing.T) {
	server := listenUDP(t)
	dropped := make(chan domain.SlotID, 8)
	u := NewUDP(UDPConfig{
		InboundSize: 1,
		Logger:      logger.Discard(),
		OnDrop:      func(s domain.SlotID) { dropped <- s },
	})
	defer u.Close()

	_ = u.Dial(context.Background(), 3, server.LocalAddr().String())
	_ = u.Send(3, []byte("hi"))

	buf := make([]byte, 16)
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, from, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = server.WriteToUDP([]byte("a"), from)
	_, _ = server.WriteToUDP([]byte("b"), from)

	select {
	case s := <-dropped:
		if s != 3 {
			t.Errorf("dropped slot = %d, want 3", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no drop reported")
	}
	if u.Drops() != 1 {
		t.Errorf("Drops() = %d, want 1", u.Drops())
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(2)
	_ = m.Dial(context.Background(), 0, "srv")

	if err := m.Send(0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := m.Send(9, []byte("a")); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("Send(unknown) error = %v", err)
	}
	if sent := m.Sent(0); len(sent) != 1 || string(sent[0]) != "a" {
		t.Errorf("Sent(0) = %q", sent)
	}
	if !m.Deliver(0, []byte("b")) {
		t.Fatal("Deliver failed")
	}
	if dg := <-m.Inbound(); dg.Slot != 0 || string(dg.Data) != "b" {
		t.Errorf("inbound = %+v", dg)
	}
	_ = m.Close()
	if m.Deliver(0, nil) {
		t.Error("Deliver after Close succeeded")
	}
}
