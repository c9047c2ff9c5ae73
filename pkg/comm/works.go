package comm

import (
	"encoding/binary"
	"fmt"

	"github.com/prismrt/prism/pkg/rays"
)

// TransferType distinguishes the two halves of a ray transfer
type TransferType uint8

const (
	// Request carries a batch of rays to their owning rank
	Request TransferType = 0
	// Grant acknowledges a request; the sender's pending count drops by
	// the granted ray count
	Grant TransferType = 1
)

const remoteRaysHeaderSize = 1 + 4 + 4 + 4

// RemoteRays is the ray-transfer message: a header {transfer type, sender,
// instance, ray count} followed, for requests, by the packed rays
type RemoteRays struct {
	TransferType TransferType
	Sender       int32
	Instance     int32
	NumRays      uint32
	Rays         rays.Batch
}

// Encode packs the transfer into a wire message
func (r *RemoteRays) Encode() *Message {
	buf := make([]byte, remoteRaysHeaderSize, remoteRaysHeaderSize+len(r.Rays)*rays.WireSize)
	buf[0] = byte(r.TransferType)
	binary.LittleEndian.PutUint32(buf[1:], uint32(r.Sender))
	binary.LittleEndian.PutUint32(buf[5:], uint32(r.Instance))
	if r.TransferType == Request {
		r.NumRays = uint32(len(r.Rays))
	}
	binary.LittleEndian.PutUint32(buf[9:], r.NumRays)
	for i := range r.Rays {
		buf = r.Rays[i].AppendWire(buf)
	}
	return &Message{
		Env:     Envelope{UserTag: TagRemoteRays, SystemTag: ControlUser},
		Payload: buf,
	}
}

// DecodeRemoteRays unpacks a ray-transfer message
func DecodeRemoteRays(msg *Message) (*RemoteRays, error) {
	if msg.Env.UserTag != TagRemoteRays {
		return nil, fmt.Errorf("remote rays: unexpected user tag %#x", msg.Env.UserTag)
	}
	if len(msg.Payload) < remoteRaysHeaderSize {
		return nil, fmt.Errorf("remote rays: header truncated")
	}
	out := &RemoteRays{
		TransferType: TransferType(msg.Payload[0]),
		Sender:       int32(binary.LittleEndian.Uint32(msg.Payload[1:])),
		Instance:     int32(binary.LittleEndian.Uint32(msg.Payload[5:])),
		NumRays:      binary.LittleEndian.Uint32(msg.Payload[9:]),
	}
	if out.TransferType == Request {
		batch, err := rays.DecodeBatch(msg.Payload[remoteRaysHeaderSize:], int(out.NumRays))
		if err != nil {
			return nil, fmt.Errorf("remote rays: %w", err)
		}
		out.Rays = batch
	}
	return out, nil
}

// VoteKind enumerates the two-phase-commit message types
type VoteKind uint8

const (
	VotePropose  VoteKind = 0
	VoteDoCommit VoteKind = 1
	VoteDoAbort  VoteKind = 2
	VoteCommit   VoteKind = 3
	VoteAbort    VoteKind = 4
)

// String returns the protocol name of the vote kind
func (k VoteKind) String() string {
	switch k {
	case VotePropose:
		return "propose"
	case VoteDoCommit:
		return "do_commit"
	case VoteDoAbort:
		return "do_abort"
	case VoteCommit:
		return "vote_commit"
	case VoteAbort:
		return "vote_abort"
	default:
		return "unknown"
	}
}

// Vote is a termination-protocol message
type Vote struct {
	Kind   VoteKind
	Sender int32
}

// Encode packs the vote into a wire message
func (v *Vote) Encode() *Message {
	buf := make([]byte, 5)
	buf[0] = byte(v.Kind)
	binary.LittleEndian.PutUint32(buf[1:], uint32(v.Sender))
	return &Message{
		Env:     Envelope{UserTag: TagVote, SystemTag: ControlVote},
		Payload: buf,
	}
}

// DecodeVote unpacks a termination-protocol message
func DecodeVote(msg *Message) (*Vote, error) {
	if len(msg.Payload) < 5 {
		return nil, fmt.Errorf("vote message truncated")
	}
	return &Vote{
		Kind:   VoteKind(msg.Payload[0]),
		Sender: int32(binary.LittleEndian.Uint32(msg.Payload[1:])),
	}, nil
}

// CommandKind enumerates top-level worker commands
type CommandKind uint8

const (
	// CommandQuit instructs a worker to terminate after the frame
	CommandQuit CommandKind = 0
)

// Command is a framework control message
type Command struct {
	Kind CommandKind
}

// Encode packs the command into a wire message
func (c *Command) Encode() *Message {
	return &Message{
		Env:     Envelope{UserTag: TagCommand, SystemTag: ControlSystem},
		Payload: []byte{byte(c.Kind)},
	}
}

// DecodeCommand unpacks a framework control message
func DecodeCommand(msg *Message) (*Command, error) {
	if len(msg.Payload) < 1 {
		return nil, fmt.Errorf("command message truncated")
	}
	return &Command{Kind: CommandKind(msg.Payload[0])}, nil
}

// Frame carries one rank's 24-bit framebuffer to the compositing rank
type Frame struct {
	Sender int32
	Width  uint32
	Height uint32
	RGB    []byte
}

// Encode packs the framebuffer into a wire message
func (f *Frame) Encode() *Message {
	buf := make([]byte, 12, 12+len(f.RGB))
	binary.LittleEndian.PutUint32(buf[0:], uint32(f.Sender))
	binary.LittleEndian.PutUint32(buf[4:], f.Width)
	binary.LittleEndian.PutUint32(buf[8:], f.Height)
	buf = append(buf, f.RGB...)
	return &Message{
		Env:     Envelope{UserTag: TagFrame, SystemTag: ControlUser},
		Payload: buf,
	}
}

// DecodeFrame unpacks a framebuffer message
func DecodeFrame(msg *Message) (*Frame, error) {
	if len(msg.Payload) < 12 {
		return nil, fmt.Errorf("frame message truncated")
	}
	f := &Frame{
		Sender: int32(binary.LittleEndian.Uint32(msg.Payload[0:])),
		Width:  binary.LittleEndian.Uint32(msg.Payload[4:]),
		Height: binary.LittleEndian.Uint32(msg.Payload[8:]),
		RGB:    msg.Payload[12:],
	}
	if len(f.RGB) != int(f.Width*f.Height*3) {
		return nil, fmt.Errorf("frame payload is %d bytes, want %d", len(f.RGB), f.Width*f.Height*3)
	}
	return f, nil
}
