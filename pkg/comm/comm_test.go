package comm

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/fogleman/pt/pt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismrt/prism/pkg/rays"
)

// TestEnvelopeCodec tests the universal header round trip
func TestEnvelopeCodec(t *testing.T) {
	in := Envelope{UserTag: TagRemoteRays, SystemTag: ControlUser, Size: 17, Dst: 3, Src: 1}
	out, err := decodeEnvelope(in.append(nil))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeEnvelope(make([]byte, EnvelopeSize-1))
	assert.Error(t, err)
}

// TestUserTagsUnique tests tag registration
func TestUserTagsUnique(t *testing.T) {
	tags := []uint64{TagRemoteRays, TagVote, TagCommand, TagFrame}
	seen := make(map[uint64]bool)
	for _, tag := range tags {
		assert.Positive(t, tag)
		assert.False(t, seen[tag], "tag %#x assigned twice", tag)
		seen[tag] = true
	}
	// the remote-rays tag carries the ray schema version in its high byte
	assert.Equal(t, uint64(rays.SchemaVersion), TagRemoteRays>>56)
}

// TestRemoteRaysCodec tests the transfer message in both directions
func TestRemoteRaysCodec(t *testing.T) {
	batch := rays.Batch{
		rays.NewPrimary(7, pt.Vector{X: 1}, pt.Vector{Z: 1}, 2),
		rays.NewPrimary(8, pt.Vector{Y: 1}, pt.Vector{X: 1}, 2),
	}

	request := RemoteRays{TransferType: Request, Sender: 1, Instance: 4, Rays: batch}
	msg := request.Encode()
	decoded, err := DecodeRemoteRays(msg)
	require.NoError(t, err)
	assert.Equal(t, Request, decoded.TransferType)
	assert.Equal(t, int32(1), decoded.Sender)
	assert.Equal(t, int32(4), decoded.Instance)
	assert.Equal(t, uint32(2), decoded.NumRays)
	assert.Equal(t, batch, decoded.Rays)

	grant := RemoteRays{TransferType: Grant, Sender: 2, Instance: 4, NumRays: 2}
	decoded, err = DecodeRemoteRays(grant.Encode())
	require.NoError(t, err)
	assert.Equal(t, Grant, decoded.TransferType)
	assert.Equal(t, uint32(2), decoded.NumRays)
	assert.Empty(t, decoded.Rays, "grants carry no payload")
}

// TestVoteCodec tests the vote message round trip
func TestVoteCodec(t *testing.T) {
	for _, kind := range []VoteKind{VotePropose, VoteDoCommit, VoteDoAbort, VoteCommit, VoteAbort} {
		in := Vote{Kind: kind, Sender: 3}
		out, err := DecodeVote(in.Encode())
		require.NoError(t, err)
		assert.Equal(t, &in, out)
	}
}

// TestFrameCodec tests the framebuffer message round trip
func TestFrameCodec(t *testing.T) {
	in := Frame{Sender: 2, Width: 2, Height: 2, RGB: make([]byte, 12)}
	in.RGB[5] = 200
	out, err := DecodeFrame(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in.RGB, out.RGB)

	bad := Frame{Sender: 2, Width: 4, Height: 4, RGB: make([]byte, 3)}
	_, err = DecodeFrame(bad.Encode())
	assert.Error(t, err)
}

// TestLoopbackFIFO tests per-pair ordering on the in-process world
func TestLoopbackFIFO(t *testing.T) {
	world := NewLoopbackWorld(2)
	defer world[0].Close()
	defer world[1].Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, world[0].Send(1, []byte{byte(i)}))
	}
	for i := 0; i < 100; i++ {
		select {
		case frame := <-world[1].Recv():
			assert.Equal(t, byte(i), frame[0])
		case <-time.After(time.Second):
			t.Fatal("frame missing")
		}
	}
}

// TestCommunicatorRouting tests dispatch to vote, user and system handlers
func TestCommunicatorRouting(t *testing.T) {
	world := NewLoopbackWorld(2)
	a := New(0, 2, world[0])
	b := New(1, 2, world[1])

	votes := make(chan *Message, 1)
	transfers := make(chan *Message, 1)
	b.HandleVote(func(m *Message) { votes <- m })
	b.Handle(TagRemoteRays, func(m *Message) { transfers <- m })
	b.Start()
	defer b.Stop()
	defer a.Stop()

	vote := Vote{Kind: VotePropose, Sender: 0}
	require.NoError(t, a.Send(vote.Encode(), 1))

	work := RemoteRays{TransferType: Grant, Sender: 0, Instance: 1, NumRays: 5}
	require.NoError(t, a.Send(work.Encode(), 1))

	select {
	case m := <-votes:
		assert.Equal(t, ControlVote, m.Env.SystemTag)
		assert.Equal(t, int64(0), m.Env.Src)
		assert.Equal(t, int64(1), m.Env.Dst)
	case <-time.After(time.Second):
		t.Fatal("vote not dispatched")
	}
	select {
	case m := <-transfers:
		assert.Equal(t, TagRemoteRays, m.Env.UserTag)
	case <-time.After(time.Second):
		t.Fatal("transfer not dispatched")
	}

	require.NoError(t, a.Quit())
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("quit not delivered")
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("quit must close the sender's own done channel")
	}
}

// TestSendToSelf tests that self-sends are rejected
func TestSendToSelf(t *testing.T) {
	world := NewLoopbackWorld(1)
	c := New(0, 1, world[0])
	vote := Vote{Kind: VotePropose, Sender: 0}
	assert.Error(t, c.Send(vote.Encode(), 0))
}

// freePorts reserves n distinct localhost ports for a test world
func freePorts(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, 0, n)
	listeners := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners = append(listeners, ln)
		addrs = append(addrs, ln.Addr().String())
	}
	for _, ln := range listeners {
		ln.Close()
	}
	return addrs
}

// TestTCPWorld tests a two-rank exchange over real sockets
func TestTCPWorld(t *testing.T) {
	addrs := freePorts(t, 2)

	transports := make([]Transport, 2)
	errs := make(chan error, 2)
	for rank := 0; rank < 2; rank++ {
		rank := rank
		go func() {
			tr, err := DialWorld(rank, addrs)
			if err != nil {
				errs <- err
				return
			}
			transports[rank] = tr
			errs <- nil
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}
	defer transports[0].Close()
	defer transports[1].Close()

	a := New(0, 2, transports[0])
	b := New(1, 2, transports[1])
	got := make(chan *Message, 8)
	b.Handle(TagRemoteRays, func(m *Message) { got <- m })
	b.Start()
	defer b.Stop()
	defer a.Stop()

	batch := rays.Batch{rays.NewPrimary(1, pt.Vector{}, pt.Vector{Z: 1}, 1)}
	for i := 0; i < 4; i++ {
		work := RemoteRays{TransferType: Request, Sender: 0, Instance: int32(i), Rays: batch}
		require.NoError(t, a.Send(work.Encode(), 1))
	}

	for i := 0; i < 4; i++ {
		select {
		case m := <-got:
			decoded, err := DecodeRemoteRays(m)
			require.NoError(t, err)
			assert.Equal(t, int32(i), decoded.Instance, "per-pair FIFO order")
			assert.Equal(t, batch, decoded.Rays)
		case <-time.After(5 * time.Second):
			t.Fatal(fmt.Sprintf("message %d missing", i))
		}
	}
}
