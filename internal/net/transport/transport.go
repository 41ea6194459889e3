package transport

import (
	"context"
	"errors"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// DefaultInboundSize is the default capacity of the merged inbound channel.
const DefaultInboundSize = 1024

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport: closed")

// Transport is the set of operations the session needs from the network.
type Transport interface {
	// Dial opens the socket for slot. Dialing an already open slot fails.
	Dial(ctx context.Context, slot domain.SlotID, addr string) error

	// Send writes one datagram on slot's socket.
	Send(slot domain.SlotID, data []byte) error

	// Disconnect closes slot's socket only.
	Disconnect(slot domain.SlotID) error

	// Inbound returns the merged receive channel.
	Inbound() <-chan domain.Datagram

	// Close closes every socket and the inbound channel.
	Close() error
}

var (
	_ Transport = (*UDP)(nil)
	_ Transport = (*Memory)(nil)
)
