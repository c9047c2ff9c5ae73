package rays

import (
	"math"
	"testing"

	"github.com/fogleman/pt/pt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewPrimary tests primary ray invariants
func TestNewPrimary(t *testing.T) {
	r := NewPrimary(42, pt.Vector{X: 1, Y: 2, Z: 3}, pt.Vector{Z: 1}, 5)

	assert.Equal(t, Primary, r.Type)
	assert.Equal(t, int32(42), r.ID)
	assert.Equal(t, int32(5), r.Depth)
	assert.Equal(t, 1.0, r.Weight)
	assert.True(t, math.IsInf(r.TMax, 1), "primary rays are unbounded until they hit")
	assert.Zero(t, r.Visited)
}

// TestVisitedMask tests the cycle-avoidance bitmask
func TestVisitedMask(t *testing.T) {
	var r Ray

	r.MarkVisited(3)
	assert.True(t, r.HasVisited(3))
	assert.False(t, r.HasVisited(4))

	// ids wrap modulo 64
	r.MarkVisited(64 + 7)
	assert.True(t, r.HasVisited(7))

	r.ClearVisited()
	assert.False(t, r.HasVisited(3))
	assert.False(t, r.HasVisited(7))
}

// TestWireRoundTrip tests the packed codec against a fully populated ray
func TestWireRoundTrip(t *testing.T) {
	in := Ray{
		Origin:    pt.Vector{X: 0.5, Y: -2.25, Z: 1e9},
		Direction: pt.Vector{X: 0, Y: 1, Z: 0},
		Color:     Color{R: 0.25, G: 0.5, B: 0.75, A: 1},
		Weight:    0.125,
		T:         3.5,
		TMax:      math.Inf(1),
		ID:        1<<20 + 3,
		Depth:     7,
		Type:      Shadow,
		Visited:   0xdeadbeef,
	}

	wire := in.AppendWire(nil)
	require.Len(t, wire, WireSize)

	out, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

// TestFromWireTruncated tests that short buffers are rejected
func TestFromWireTruncated(t *testing.T) {
	_, err := FromWire(make([]byte, WireSize-1))
	assert.Error(t, err)
}

// TestBatchCodec tests batch encoding and the count/length consistency check
func TestBatchCodec(t *testing.T) {
	batch := Batch{
		NewPrimary(0, pt.Vector{}, pt.Vector{Z: 1}, 3),
		NewPrimary(1, pt.Vector{X: 1}, pt.Vector{Y: 1}, 3),
	}
	batch[1].Type = Secondary
	batch[1].MarkVisited(9)

	payload := EncodeBatch(batch)
	require.Len(t, payload, 2*WireSize)

	decoded, err := DecodeBatch(payload, 2)
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)

	_, err = DecodeBatch(payload, 3)
	assert.Error(t, err, "count and payload length must agree")
}

// TestAdvance tests origin marching
func TestAdvance(t *testing.T) {
	r := NewPrimary(0, pt.Vector{}, pt.Vector{X: 1}, 1)
	r.Advance(2.5)
	assert.Equal(t, pt.Vector{X: 2.5}, r.Origin)
}
