package comm

import (
	"errors"
	"sync"
)

// ErrClosed is returned when sending through a closed transport
var ErrClosed = errors.New("comm: transport closed")

// Transport moves opaque frames between ranks. Implementations guarantee
// FIFO delivery per (sender, receiver) pair; nothing is assumed across
// pairs.
type Transport interface {
	// Send enqueues one frame for the destination rank without blocking
	// on the wire
	Send(dst int, frame []byte) error
	// Recv yields inbound frames for this rank
	Recv() <-chan []byte
	Close() error
}

// loopback is an in-process transport: every rank's inbox is a buffered
// channel in shared memory. Multi-rank tests run whole worlds on it.
type loopback struct {
	rank   int
	world  []*loopback
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewLoopbackWorld builds an in-process world of the given size and returns
// one transport per rank
func NewLoopbackWorld(size int) []Transport {
	world := make([]*loopback, size)
	for i := range world {
		world[i] = &loopback{
			rank:   i,
			inbox:  make(chan []byte, 4096),
			closed: make(chan struct{}),
		}
	}
	out := make([]Transport, size)
	for i := range world {
		world[i].world = world
		out[i] = world[i]
	}
	return out
}

func (l *loopback) Send(dst int, frame []byte) error {
	if dst < 0 || dst >= len(l.world) {
		return errors.New("comm: destination rank out of range")
	}
	peer := l.world[dst]
	select {
	case <-l.closed:
		return ErrClosed
	case <-peer.closed:
		return ErrClosed
	case peer.inbox <- frame:
		return nil
	}
}

func (l *loopback) Recv() <-chan []byte {
	return l.inbox
}

func (l *loopback) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
