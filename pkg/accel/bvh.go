package accel

import (
	"math"
	"runtime"
	"sort"

	"github.com/fogleman/pt/pt"
	"golang.org/x/sync/errgroup"

	"github.com/prismrt/prism/pkg/rays"
	"github.com/prismrt/prism/pkg/scene"
)

// Hit is the routing result for one ray: the id of the next instance whose
// bounding box the ray enters, or -1, together with the parametric entry
// distance.
type Hit struct {
	Instance int
	TEnter   float64
}

// NoHit marks a ray that enters no further instance
var NoHit = Hit{Instance: -1, TEnter: math.Inf(1)}

const leafThreshold = 4

type node struct {
	box    pt.Box
	left   *node
	right  *node
	leaves []*scene.Instance
}

// Index is the top-level bounding volume hierarchy over instance bounds.
// It is built once per frame and answers, for each ray, which instance the
// ray visits next.
type Index struct {
	root *node
}

// New builds the hierarchy by median split on the longest axis
func New(instances []*scene.Instance) *Index {
	if len(instances) == 0 {
		return &Index{}
	}
	work := make([]*scene.Instance, len(instances))
	copy(work, instances)
	return &Index{root: build(work)}
}

func build(instances []*scene.Instance) *node {
	box := instances[0].Bounds
	for _, inst := range instances[1:] {
		box.Min = box.Min.Min(inst.Bounds.Min)
		box.Max = box.Max.Max(inst.Bounds.Max)
	}
	if len(instances) <= leafThreshold {
		return &node{box: box, leaves: instances}
	}
	axis := longestAxis(box)
	sort.Slice(instances, func(i, j int) bool {
		return center(instances[i].Bounds, axis) < center(instances[j].Bounds, axis)
	})
	mid := len(instances) / 2
	return &node{
		box:   box,
		left:  build(instances[:mid]),
		right: build(instances[mid:]),
	}
}

func longestAxis(b pt.Box) int {
	size := b.Max.Sub(b.Min)
	if size.X >= size.Y && size.X >= size.Z {
		return 0
	}
	if size.Y >= size.Z {
		return 1
	}
	return 2
}

func center(b pt.Box, axis int) float64 {
	switch axis {
	case 0:
		return (b.Min.X + b.Max.X) / 2
	case 1:
		return (b.Min.Y + b.Max.Y) / 2
	default:
		return (b.Min.Z + b.Max.Z) / 2
	}
}

// slab returns the entry and exit distances of the ray against the box
func slab(b pt.Box, origin, dir pt.Vector) (float64, float64) {
	tmin := math.Inf(-1)
	tmax := math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		var lo, hi, o, d float64
		switch axis {
		case 0:
			lo, hi, o, d = b.Min.X, b.Max.X, origin.X, dir.X
		case 1:
			lo, hi, o, d = b.Min.Y, b.Max.Y, origin.Y, dir.Y
		default:
			lo, hi, o, d = b.Min.Z, b.Max.Z, origin.Z, dir.Z
		}
		if d == 0 {
			if o < lo || o > hi {
				return 1, 0
			}
			continue
		}
		t0 := (lo - o) / d
		t1 := (hi - o) / d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		if tmin > tmax {
			return 1, 0
		}
	}
	return tmin, tmax
}

// NextHit resolves the next instance a single ray visits. The excluded
// instance (the one just traced) and instances in the ray's visited set are
// skipped; a finite TMax bounds how far the ray may still travel (shadow
// rays stop at their light). Ties on the entry distance go to the lower
// instance id.
func (ix *Index) NextHit(r *rays.Ray, exclude int) Hit {
	best := NoHit
	if ix.root != nil {
		ix.walk(ix.root, r, exclude, &best)
	}
	return best
}

func (ix *Index) walk(n *node, r *rays.Ray, exclude int, best *Hit) {
	tmin, tmax := slab(n.box, r.Origin, r.Direction)
	if tmin > tmax || tmax < 0 || tmin > best.TEnter || tmin > r.TMax {
		return
	}
	if n.leaves != nil {
		for _, inst := range n.leaves {
			if inst.ID == exclude || r.HasVisited(inst.ID) {
				continue
			}
			t0, t1 := slab(inst.Bounds, r.Origin, r.Direction)
			if t0 > t1 || t1 < 0 || t0 > r.TMax {
				continue
			}
			enter := math.Max(t0, 0)
			if enter < best.TEnter || (enter == best.TEnter && inst.ID < best.Instance) {
				*best = Hit{Instance: inst.ID, TEnter: enter}
			}
		}
		return
	}
	ix.walk(n.left, r, exclude, best)
	ix.walk(n.right, r, exclude, best)
}

// NextHits resolves a whole batch in parallel chunks
func (ix *Index) NextHits(batch rays.Batch, exclude int) []Hit {
	hits := make([]Hit, len(batch))
	if len(batch) == 0 {
		return hits
	}
	chunk := len(batch) / (runtime.NumCPU() * 4)
	if chunk < 2 {
		chunk = 2
	}
	var g errgroup.Group
	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				hits[i] = ix.NextHit(&batch[i], exclude)
			}
			return nil
		})
	}
	g.Wait()
	return hits
}
