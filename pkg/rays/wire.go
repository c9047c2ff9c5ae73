package rays

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fogleman/pt/pt"
)

// WireSize is the packed little-endian size of one Ray on the wire
const WireSize = 124

// SchemaVersion identifies the ray wire layout; it is folded into the
// user tag of REMOTE_RAYS messages so incompatible peers are detectable
const SchemaVersion = 1

func putVector(b []byte, v pt.Vector) {
	binary.LittleEndian.PutUint64(b[0:], math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(v.Y))
	binary.LittleEndian.PutUint64(b[16:], math.Float64bits(v.Z))
}

func getVector(b []byte) pt.Vector {
	return pt.Vector{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		Z: math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
	}
}

// AppendWire appends the packed wire form of the ray to buf
func (r *Ray) AppendWire(buf []byte) []byte {
	var w [WireSize]byte
	putVector(w[0:], r.Origin)
	putVector(w[24:], r.Direction)
	binary.LittleEndian.PutUint64(w[48:], math.Float64bits(r.Color.R))
	binary.LittleEndian.PutUint64(w[56:], math.Float64bits(r.Color.G))
	binary.LittleEndian.PutUint64(w[64:], math.Float64bits(r.Color.B))
	binary.LittleEndian.PutUint64(w[72:], math.Float64bits(r.Color.A))
	binary.LittleEndian.PutUint64(w[80:], math.Float64bits(r.Weight))
	binary.LittleEndian.PutUint64(w[88:], math.Float64bits(r.T))
	binary.LittleEndian.PutUint64(w[96:], math.Float64bits(r.TMax))
	binary.LittleEndian.PutUint32(w[104:], uint32(r.ID))
	binary.LittleEndian.PutUint32(w[108:], uint32(r.Depth))
	binary.LittleEndian.PutUint32(w[112:], uint32(r.Type))
	binary.LittleEndian.PutUint64(w[116:], r.Visited)
	return append(buf, w[:]...)
}

// FromWire decodes one packed ray from b, which must hold WireSize bytes
func FromWire(b []byte) (Ray, error) {
	if len(b) < WireSize {
		return Ray{}, fmt.Errorf("ray wire form truncated: %d of %d bytes", len(b), WireSize)
	}
	var r Ray
	r.Origin = getVector(b[0:])
	r.Direction = getVector(b[24:])
	r.Color.R = math.Float64frombits(binary.LittleEndian.Uint64(b[48:]))
	r.Color.G = math.Float64frombits(binary.LittleEndian.Uint64(b[56:]))
	r.Color.B = math.Float64frombits(binary.LittleEndian.Uint64(b[64:]))
	r.Color.A = math.Float64frombits(binary.LittleEndian.Uint64(b[72:]))
	r.Weight = math.Float64frombits(binary.LittleEndian.Uint64(b[80:]))
	r.T = math.Float64frombits(binary.LittleEndian.Uint64(b[88:]))
	r.TMax = math.Float64frombits(binary.LittleEndian.Uint64(b[96:]))
	r.ID = int32(binary.LittleEndian.Uint32(b[104:]))
	r.Depth = int32(binary.LittleEndian.Uint32(b[108:]))
	r.Type = Type(binary.LittleEndian.Uint32(b[112:]))
	r.Visited = binary.LittleEndian.Uint64(b[116:])
	return r, nil
}

// EncodeBatch packs a batch of rays into a single payload
func EncodeBatch(batch Batch) []byte {
	buf := make([]byte, 0, len(batch)*WireSize)
	for i := range batch {
		buf = batch[i].AppendWire(buf)
	}
	return buf
}

// DecodeBatch unpacks count rays from payload
func DecodeBatch(payload []byte, count int) (Batch, error) {
	if len(payload) != count*WireSize {
		return nil, fmt.Errorf("ray batch payload is %d bytes, want %d", len(payload), count*WireSize)
	}
	batch := make(Batch, 0, count)
	for i := 0; i < count; i++ {
		r, err := FromWire(payload[i*WireSize:])
		if err != nil {
			return nil, err
		}
		batch = append(batch, r)
	}
	return batch, nil
}
