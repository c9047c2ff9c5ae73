package comm

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/prismrt/prism/pkg/rays"
)

// System tags classify every message on the wire
const (
	// ControlSystem marks framework-internal messages (QUIT)
	ControlSystem uint64 = 0x8
	// ControlUser marks application-level messages (ray transfers, frames)
	ControlUser uint64 = 0x9
	// ControlVote marks termination-protocol messages
	ControlVote uint64 = 0xA
)

// EnvelopeSize is the packed size of the universal message header
const EnvelopeSize = 40

// Envelope is the universal header prepended to every message
type Envelope struct {
	UserTag   uint64
	SystemTag uint64
	Size      uint64
	Dst       int64
	Src       int64
}

func (e *Envelope) append(buf []byte) []byte {
	var w [EnvelopeSize]byte
	binary.LittleEndian.PutUint64(w[0:], e.UserTag)
	binary.LittleEndian.PutUint64(w[8:], e.SystemTag)
	binary.LittleEndian.PutUint64(w[16:], e.Size)
	binary.LittleEndian.PutUint64(w[24:], uint64(e.Dst))
	binary.LittleEndian.PutUint64(w[32:], uint64(e.Src))
	return append(buf, w[:]...)
}

func decodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < EnvelopeSize {
		return Envelope{}, fmt.Errorf("message envelope truncated: %d of %d bytes", len(b), EnvelopeSize)
	}
	return Envelope{
		UserTag:   binary.LittleEndian.Uint64(b[0:]),
		SystemTag: binary.LittleEndian.Uint64(b[8:]),
		Size:      binary.LittleEndian.Uint64(b[16:]),
		Dst:       int64(binary.LittleEndian.Uint64(b[24:])),
		Src:       int64(binary.LittleEndian.Uint64(b[32:])),
	}, nil
}

// Message is one framed unit on the transfer plane
type Message struct {
	Env     Envelope
	Payload []byte
}

func (m *Message) encode() []byte {
	m.Env.Size = uint64(len(m.Payload))
	buf := make([]byte, 0, EnvelopeSize+len(m.Payload))
	buf = m.Env.append(buf)
	return append(buf, m.Payload...)
}

func decodeMessage(frame []byte) (*Message, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	if uint64(len(frame)-EnvelopeSize) != env.Size {
		return nil, fmt.Errorf("message payload is %d bytes, header says %d", len(frame)-EnvelopeSize, env.Size)
	}
	return &Message{Env: env, Payload: frame[EnvelopeSize:]}, nil
}

// Message classes register at process start and receive a unique positive
// user tag. The high byte of the tag carries the payload schema version so
// incompatible peers surface as tag mismatches instead of corrupt decodes.
var tagRegistry struct {
	mu   sync.Mutex
	next uint64
}

// RegisterUserTag allocates the next user tag with the given schema version
func RegisterUserTag(version uint8) uint64 {
	tagRegistry.mu.Lock()
	defer tagRegistry.mu.Unlock()
	tagRegistry.next++
	return tagRegistry.next | uint64(version)<<56
}

// User tags for the message classes of the tracing core
var (
	TagRemoteRays = RegisterUserTag(rays.SchemaVersion)
	TagVote       = RegisterUserTag(0)
	TagCommand    = RegisterUserTag(0)
	TagFrame      = RegisterUserTag(0)
)
