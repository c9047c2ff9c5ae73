package accel

import (
	"math"
	"testing"

	"github.com/fogleman/pt/pt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismrt/prism/pkg/rays"
	"github.com/prismrt/prism/pkg/scene"
)

// instanceRow builds unit boxes centered at x = 0, spacing, 2*spacing, ...
func instanceRow(t *testing.T, count int, spacing float64) []*scene.Instance {
	t.Helper()
	mesh := &scene.Mesh{
		Name:     "cube",
		Material: scene.NewLambert(pt.Vector{X: 1, Y: 1, Z: 1}),
		Geometry: scene.BoxGeometry(pt.Vector{X: -1, Y: -1, Z: -1}, pt.Vector{X: 1, Y: 1, Z: 1}),
	}
	instances := make([]*scene.Instance, 0, count)
	for i := 0; i < count; i++ {
		inst, err := scene.NewInstance(i, mesh, scene.Translate(pt.Vector{X: float64(i) * spacing}))
		require.NoError(t, err)
		instances = append(instances, inst)
	}
	return instances
}

// TestNextHitNearest tests that the first box along the ray wins
func TestNextHitNearest(t *testing.T) {
	ix := New(instanceRow(t, 4, 4))

	r := rays.NewPrimary(0, pt.Vector{X: -10}, pt.Vector{X: 1}, 1)
	hit := ix.NextHit(&r, -1)

	assert.Equal(t, 0, hit.Instance)
	assert.InDelta(t, 9, hit.TEnter, 1e-9)
}

// TestNextHitMiss tests rays that enter nothing
func TestNextHitMiss(t *testing.T) {
	ix := New(instanceRow(t, 4, 4))

	r := rays.NewPrimary(0, pt.Vector{X: -10, Y: 50}, pt.Vector{X: 1}, 1)
	hit := ix.NextHit(&r, -1)

	assert.Equal(t, -1, hit.Instance)
	assert.True(t, math.IsInf(hit.TEnter, 1))
}

// TestNextHitTieBreak tests that coincident boxes resolve to the lower id
func TestNextHitTieBreak(t *testing.T) {
	mesh := &scene.Mesh{
		Name:     "cube",
		Geometry: scene.BoxGeometry(pt.Vector{X: -1, Y: -1, Z: -1}, pt.Vector{X: 1, Y: 1, Z: 1}),
	}
	// two instances with identical bounds
	a, err := scene.NewInstance(0, mesh, scene.Identity())
	require.NoError(t, err)
	b, err := scene.NewInstance(1, mesh, scene.Identity())
	require.NoError(t, err)
	ix := New([]*scene.Instance{b, a})

	r := rays.NewPrimary(0, pt.Vector{X: -5}, pt.Vector{X: 1}, 1)
	hit := ix.NextHit(&r, -1)
	assert.Equal(t, 0, hit.Instance)
}

// TestNextHitExcludeAndVisited tests the cycle-avoidance inputs
func TestNextHitExcludeAndVisited(t *testing.T) {
	ix := New(instanceRow(t, 3, 4))

	r := rays.NewPrimary(0, pt.Vector{X: -10}, pt.Vector{X: 1}, 1)
	hit := ix.NextHit(&r, 0)
	assert.Equal(t, 1, hit.Instance, "excluded instance is skipped")

	r.MarkVisited(1)
	hit = ix.NextHit(&r, 0)
	assert.Equal(t, 2, hit.Instance, "visited instances are skipped")
}

// TestNextHitShadowExtent tests that a finite TMax bounds routing: a shadow
// ray never enters a box beyond its light
func TestNextHitShadowExtent(t *testing.T) {
	ix := New(instanceRow(t, 2, 10))

	r := rays.NewPrimary(0, pt.Vector{X: -5}, pt.Vector{X: 1}, 1)
	r.Type = rays.Shadow
	r.TMax = 3 // light sits in front of the first box

	hit := ix.NextHit(&r, -1)
	assert.Equal(t, -1, hit.Instance)
}

// TestNextHitInsideBox tests a ray starting inside an instance's bounds
func TestNextHitInsideBox(t *testing.T) {
	ix := New(instanceRow(t, 1, 0))

	r := rays.NewPrimary(0, pt.Vector{}, pt.Vector{X: 1}, 1)
	hit := ix.NextHit(&r, -1)
	assert.Equal(t, 0, hit.Instance)
	assert.Zero(t, hit.TEnter, "entry is clamped at the origin")
}

// TestNextHitsMatchesSerial tests the batched traversal against the scalar
// one
func TestNextHitsMatchesSerial(t *testing.T) {
	instances := instanceRow(t, 8, 3)
	ix := New(instances)

	batch := make(rays.Batch, 0, 64)
	for i := 0; i < 64; i++ {
		origin := pt.Vector{X: -5 + float64(i%7), Y: float64(i%3) - 1}
		batch = append(batch, rays.NewPrimary(int32(i), origin, pt.Vector{X: 1}, 1))
	}

	hits := ix.NextHits(batch, 2)
	require.Len(t, hits, len(batch))
	for i := range batch {
		expected := ix.NextHit(&batch[i], 2)
		assert.Equal(t, expected, hits[i], "ray %d", i)
	}
}

// TestShuffleIdempotence tests that advancing a ray by 0.8 of its entry
// distance keeps it routed to the same instance
func TestShuffleIdempotence(t *testing.T) {
	ix := New(instanceRow(t, 4, 6))

	r := rays.NewPrimary(0, pt.Vector{X: -9}, pt.Vector{X: 1}, 1)
	first := ix.NextHit(&r, -1)
	require.GreaterOrEqual(t, first.Instance, 0)

	r.Advance(0.8 * first.TEnter)
	second := ix.NextHit(&r, -1)
	assert.Equal(t, first.Instance, second.Instance)
	assert.InDelta(t, 0.2*first.TEnter, second.TEnter, 1e-9)
}

// TestEmptyIndex tests the degenerate index
func TestEmptyIndex(t *testing.T) {
	ix := New(nil)
	r := rays.NewPrimary(0, pt.Vector{}, pt.Vector{X: 1}, 1)
	assert.Equal(t, NoHit, ix.NextHit(&r, -1))
}
