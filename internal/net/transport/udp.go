package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/net/packet"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/pkg/cmap"
)

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	InboundSize int
	ReadBuffer  int

	// OnDrop is called when a datagram is discarded because Inbound is full.
	OnDrop func(slot domain.SlotID)

	Logger logger.Logger
}

// UDP is a Transport with one connected UDP socket per slot.
type UDP struct {
	cfg     UDPConfig
	logger  logger.Logger
	links   *cmap.Map[domain.SlotID, *link]
	inbound chan domain.Datagram

	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool
	wg     sync.WaitGroup
	drops  atomic.Uint64
}

type link struct {
	slot    domain.SlotID
	conn    *net.UDPConn
	closing atomic.Bool
}

// NewUDP creates a UDP transport.
func NewUDP(cfg UDPConfig) *UDP {
	if cfg.InboundSize <= 0 {
		cfg.InboundSize = DefaultInboundSize
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = packet.MaxPacketSize
	}
	return &UDP{
		cfg:    cfg,
		logger: logger.OrDefault(cfg.Logger),
		links: cmap.NewWithHasher[domain.SlotID, *link](cmap.DefaultShardCount, func(id domain.SlotID) uint64 {
			return cmap.HashUint32(uint32(id))
		}),
		inbound: make(chan domain.Datagram, cfg.InboundSize),
	}
}

// Dial implements Transport.
func (u *UDP) Dial(ctx context.Context, slot domain.SlotID, addr string) error {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return domain.ErrConnectionError.WithDetails(fmt.Sprintf("dial %s", addr)).WithCause(err)
	}
	conn := c.(*net.UDPConn)

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		conn.Close()
		return ErrClosed
	}

	l := &link{slot: slot, conn: conn}
	if !u.links.SetIfAbsent(slot, l) {
		conn.Close()
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("%s already dialed", slot))
	}

	u.wg.Add(1)
	go u.readLoop(l)

	u.logger.Debug("slot socket opened",
		"slot_id", uint32(slot),
		"local", conn.LocalAddr().String(),
		"remote", addr,
	)
	return nil
}

func (u *UDP) readLoop(l *link) {
	defer u.wg.Done()

	buf := make([]byte, u.cfg.ReadBuffer)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			if l.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			u.push(domain.Datagram{Slot: l.slot, Err: domain.ErrConnectionError.WithCause(err)})
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		u.push(domain.Datagram{Slot: l.slot, Data: data})
	}
}

func (u *UDP) push(dg domain.Datagram) {
	select {
	case u.inbound <- dg:
	default:
		u.drops.Add(1)
		if u.cfg.OnDrop != nil {
			u.cfg.OnDrop(dg.Slot)
		}
	}
}

// Send implements Transport.
func (u *UDP) Send(slot domain.SlotID, data []byte) error {
	l, ok := u.links.Get(slot)
	if !ok {
		return domain.ErrInvalidSlot.WithDetails(slot.String())
	}
	if _, err := l.conn.Write(data); err != nil {
		return domain.ErrConnectionError.WithDetails(slot.String()).WithCause(err)
	}
	return nil
}

// Disconnect implements Transport.
func (u *UDP) Disconnect(slot domain.SlotID) error {
	l, ok := u.links.Pop(slot)
	if !ok {
		return nil
	}
	l.closing.Store(true)
	u.logger.Debug("slot socket closed", "slot_id", uint32(slot))
	return l.conn.Close()
}

// Inbound implements Transport.
func (u *UDP) Inbound() <-chan domain.Datagram {
	return u.inbound
}

// Drops returns the number of datagrams discarded on a full inbound channel.
func (u *UDP) Drops() uint64 {
	return u.drops.Load()
}

// Close implements Transport.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	var errs []error
	for _, l := range u.links.Drain() {
		l.closing.Store(true)
		if err := l.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	u.wg.Wait()
	close(u.inbound)
	return errors.Join(errs...)
}
