package comm

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/prismrt/prism/pkg/log"
)

const (
	dialTimeout  = 30 * time.Second
	dialBackoff  = 250 * time.Millisecond
	sendQueueLen = 1024
)

// tcpTransport is the deployment transport: one listener per rank, one
// dialed connection per peer for outbound traffic. A per-peer writer
// goroutine keeps sends non-blocking and FIFO per destination.
type tcpTransport struct {
	rank  int
	addrs []string

	ln     net.Listener
	sendQ  []chan []byte
	conns  []net.Conn
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// DialWorld listens on addrs[rank] and connects to every peer. Peers may
// come up in any order; dialing retries until the timeout. The world is
// assumed up for the duration of a frame, so any later transport failure is
// fatal.
func DialWorld(rank int, addrs []string) (Transport, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, fmt.Errorf("rank %d outside world of %d", rank, len(addrs))
	}
	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("rank %d listen: %w", rank, err)
	}
	t := &tcpTransport{
		rank:   rank,
		addrs:  addrs,
		ln:     ln,
		sendQ:  make([]chan []byte, len(addrs)),
		conns:  make([]net.Conn, len(addrs)),
		inbox:  make(chan []byte, 4096),
		closed: make(chan struct{}),
	}

	t.wg.Add(1)
	go t.accept()

	for dst := range addrs {
		if dst == rank {
			continue
		}
		conn, err := t.dial(dst)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.conns[dst] = conn
		t.sendQ[dst] = make(chan []byte, sendQueueLen)
		t.wg.Add(1)
		go t.writer(dst, conn)
	}
	return t, nil
}

func (t *tcpTransport) dial(dst int) (net.Conn, error) {
	deadline := time.Now().Add(dialTimeout)
	for {
		conn, err := net.Dial("tcp", t.addrs[dst])
		if err == nil {
			// identify ourselves so the peer can attribute the stream
			var hello [4]byte
			binary.LittleEndian.PutUint32(hello[:], uint32(t.rank))
			if _, err := conn.Write(hello[:]); err != nil {
				conn.Close()
				return nil, fmt.Errorf("rank %d handshake to %d: %w", t.rank, dst, err)
			}
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("rank %d dial rank %d at %s: %w", t.rank, dst, t.addrs[dst], err)
		}
		time.Sleep(dialBackoff)
	}
}

func (t *tcpTransport) accept() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				logger := log.WithComponent("comm")
				logger.Fatal().Err(err).Msg("accept failed")
			}
		}
		t.wg.Add(1)
		go t.reader(conn)
	}
}

func (t *tcpTransport) reader(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	var hello [4]byte
	if _, err := io.ReadFull(conn, hello[:]); err != nil {
		t.fail("peer handshake", err)
		return
	}
	src := int(binary.LittleEndian.Uint32(hello[:]))

	for {
		var head [EnvelopeSize]byte
		if _, err := io.ReadFull(conn, head[:]); err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			if err == io.EOF {
				return
			}
			t.fail(fmt.Sprintf("read from rank %d", src), err)
			return
		}
		size := binary.LittleEndian.Uint64(head[16:24])
		frame := make([]byte, EnvelopeSize+size)
		copy(frame, head[:])
		if _, err := io.ReadFull(conn, frame[EnvelopeSize:]); err != nil {
			t.fail(fmt.Sprintf("read payload from rank %d", src), err)
			return
		}
		select {
		case t.inbox <- frame:
		case <-t.closed:
			return
		}
	}
}

func (t *tcpTransport) writer(dst int, conn net.Conn) {
	defer t.wg.Done()
	for {
		select {
		case frame := <-t.sendQ[dst]:
			if _, err := conn.Write(frame); err != nil {
				t.fail(fmt.Sprintf("write to rank %d", dst), err)
				return
			}
		case <-t.closed:
			return
		}
	}
}

// fail reports an unrecoverable transport error. Peer loss mid-frame is not
// survivable, so this halts the process.
func (t *tcpTransport) fail(op string, err error) {
	select {
	case <-t.closed:
		return
	default:
	}
	logger := log.WithComponent("comm")
	logger.Fatal().Err(err).Int("rank", t.rank).Msg(op)
}

func (t *tcpTransport) Send(dst int, frame []byte) error {
	if dst < 0 || dst >= len(t.addrs) || dst == t.rank {
		return fmt.Errorf("comm: invalid destination rank %d", dst)
	}
	select {
	case <-t.closed:
		return ErrClosed
	case t.sendQ[dst] <- frame:
		return nil
	}
}

func (t *tcpTransport) Recv() <-chan []byte {
	return t.inbox
}

func (t *tcpTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.ln.Close()
		for _, conn := range t.conns {
			if conn != nil {
				conn.Close()
			}
		}
	})
	return nil
}
