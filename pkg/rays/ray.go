package rays

import (
	"math"

	"github.com/fogleman/pt/pt"
)

// Type classifies a ray by how it was spawned
type Type int32

const (
	// Primary rays originate at the camera
	Primary Type = iota
	// Secondary rays are Russian-roulette bounces off a surface
	Secondary
	// Shadow rays probe visibility toward a light and carry pre-shaded color
	Shadow
)

// String returns the human-readable ray type
func (t Type) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Shadow:
		return "shadow"
	default:
		return "unknown"
	}
}

// Color is a per-ray accumulator: three channels plus alpha
type Color struct {
	R, G, B, A float64
}

// Add returns the channel-wise sum of two colors
func (c Color) Add(o Color) Color {
	return Color{c.R + o.R, c.G + o.G, c.B + o.B, c.A + o.A}
}

// Scale returns the color with all channels multiplied by s
func (c Color) Scale(s float64) Color {
	return Color{c.R * s, c.G * s, c.B * s, c.A * s}
}

// Ray is the unit of work moved between instances, queues and ranks.
// It is plain data with fixed-width fields only, so the wire form is a
// field-by-field packed copy (see wire.go).
type Ray struct {
	Origin    pt.Vector
	Direction pt.Vector
	Color     Color
	Weight    float64
	T         float64
	TMax      float64
	ID        int32
	Depth     int32
	Type      Type
	// Visited is a bitmask of instance ids (mod 64) this ray has already
	// entered, used for cycle avoidance during top-level routing. Cleared
	// when a secondary ray is spawned.
	Visited uint64
}

// NewPrimary builds a camera ray with an unbounded extent
func NewPrimary(id int32, origin, direction pt.Vector, depth int32) Ray {
	return Ray{
		Origin:    origin,
		Direction: direction,
		Weight:    1.0,
		TMax:      math.Inf(1),
		ID:        id,
		Depth:     depth,
		Type:      Primary,
	}
}

// MarkVisited records that the ray entered the given instance
func (r *Ray) MarkVisited(instanceID int) {
	r.Visited |= 1 << (uint(instanceID) % 64)
}

// HasVisited reports whether the ray already entered the given instance
func (r *Ray) HasVisited(instanceID int) bool {
	return r.Visited&(1<<(uint(instanceID)%64)) != 0
}

// ClearVisited resets the visited set, used when a bounce restarts routing
func (r *Ray) ClearVisited() {
	r.Visited = 0
}

// Advance moves the ray origin along its direction by t. A finite extent
// shrinks with it, so a shadow ray's TMax keeps measuring the remaining
// distance to its light.
func (r *Ray) Advance(t float64) {
	r.Origin = r.Origin.Add(r.Direction.MulScalar(t))
	if !math.IsInf(r.TMax, 1) {
		r.TMax -= t
	}
}

// Batch is an ordered collection of rays, the unit handed to adapters,
// queues and the transfer plane
type Batch []Ray
