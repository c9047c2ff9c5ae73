package adapter

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/fogleman/pt/pt"
	"golang.org/x/sync/errgroup"

	"github.com/prismrt/prism/pkg/rays"
	"github.com/prismrt/prism/pkg/scene"
)

// Shadow and secondary origins back off the hit point by 16 machine epsilons
// relative to t,
// keeping spawned rays on the correct side of the surface.
// Technique from "Robust BVH Ray Traversal" by Thiago Ize.
const offsetMultiplier = 1.0 - 16*2.220446049250313e-16

// MeshAdapter intersects ray batches against one mesh through the fogleman/pt
// kernel. All intersection math runs in object space: incoming rays are
// transformed by the instance inverse, normals back out through the
// inverse-transpose.
type MeshAdapter struct {
	mesh      *scene.Mesh
	frameSeed int64
}

// NewMeshAdapter compiles the mesh's acceleration structure
func NewMeshAdapter(mesh *scene.Mesh, frameSeed int64) (*MeshAdapter, error) {
	if mesh == nil || mesh.Geometry == nil || len(mesh.Geometry.Triangles) == 0 {
		return nil, fmt.Errorf("mesh has no geometry")
	}
	mesh.Geometry.Compile()
	return &MeshAdapter{mesh: mesh, frameSeed: frameSeed}, nil
}

// Trace drains the batch. Workers claim chunks through an atomic shared
// index, so there is no dispatcher; each worker keeps a local outgoing list
// and merges it into out once at the end.
func (a *MeshAdapter) Trace(in rays.Batch, out *rays.Batch, inst *scene.Instance, lights []scene.Light) {
	if len(in) == 0 {
		return
	}

	workers := runtime.NumCPU()
	chunk := len(in) / (workers * 8)
	if chunk < 8 {
		chunk = 8
	}

	var sharedIdx atomic.Int64
	var outMu sync.Mutex

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(a.frameSeed + int64(workerID)))
			local := make(rays.Batch, 0, chunk*2)
			shadows := make(rays.Batch, 0, chunk*len(lights))

			for {
				start := int(sharedIdx.Add(int64(chunk))) - chunk
				if start >= len(in) {
					break
				}
				end := start + chunk
				if end > len(in) {
					end = len(in)
				}
				for i := start; i < end; i++ {
					a.traceRay(in[i], inst, lights, rng, &local, &shadows)
				}
				// resolve this chunk's shadow rays against the same
				// kernel; unoccluded ones leave the instance
				for j := range shadows {
					if !a.occluded(&shadows[j], inst) {
						local = append(local, shadows[j])
					}
				}
				shadows = shadows[:0]
			}

			outMu.Lock()
			*out = append(*out, local...)
			outMu.Unlock()
			return nil
		})
	}
	g.Wait()
}

// traceRay follows one ray and its roulette replacements until they either
// leave the instance (appended to local) or terminate with no contribution
func (a *MeshAdapter) traceRay(r rays.Ray, inst *scene.Instance, lights []scene.Light, rng *rand.Rand, local, shadows *rays.Batch) {
	for {
		objRay := pt.Ray{
			Origin: inst.MInv.MulPosition(r.Origin),
			// unnormalized on purpose: parametric distances then agree
			// between object and world space
			Direction: inst.MInv.MulDirection(r.Direction),
		}
		hit := a.mesh.Geometry.Intersect(objRay)

		if !hit.Ok() || hit.T > r.TMax {
			// the ray passes through this instance untouched
			*local = append(*local, r)
			return
		}
		if r.Type == rays.Shadow {
			// occluded on the way to its light
			return
		}

		r.T = hit.T
		normal := inst.Norm.MulNormal(hit.Info(objRay).Normal)
		if normal.Dot(r.Direction) > 0 {
			normal = normal.Negate()
		}

		if r.Type == rays.Secondary {
			t := r.T
			if t > 1 {
				t = 1 / t
			}
			r.Weight *= t
		}

		a.generateShadowRays(&r, normal, inst, lights, shadows)

		depth := r.Depth - 1
		p := 1 - rng.Float64()
		if depth > 0 && r.Weight > p {
			// replace the ray with its bounce and keep marching
			r.ClearVisited()
			r.Type = rays.Secondary
			r.Advance(offsetMultiplier * r.T)
			r.Direction = cosineHemisphere(normal, rng)
			r.Weight *= r.Direction.Dot(normal)
			r.Depth = depth
			r.TMax = math.Inf(1)
			continue
		}
		// terminated with no further contribution
		return
	}
}

// generateShadowRays emits one shadow ray per light from just before the hit
// point, carrying the pre-shaded color it will deposit if it reaches the
// light. Ambient lights have no direction to occlude, so their rays carry a
// zero extent and route straight to the framebuffer.
func (a *MeshAdapter) generateShadowRays(r *rays.Ray, normal pt.Vector, inst *scene.Instance, lights []scene.Light, shadows *rays.Batch) {
	tShadow := offsetMultiplier * r.T
	origin := r.Origin.Add(r.Direction.MulScalar(tShadow))

	for _, light := range lights {
		shadow := *r
		shadow.Type = rays.Shadow
		shadow.Origin = origin
		shadow.T = r.T
		shadow.ClearVisited()
		shadow.MarkVisited(inst.ID)

		if light.Kind == scene.AmbientLight {
			shadow.TMax = 0
			shadow.Color = a.mesh.Material.Shade(r.Direction, normal, normal, light, r.Weight)
			*shadows = append(*shadows, shadow)
			continue
		}

		toLight := light.Position.Sub(origin)
		shadow.TMax = toLight.Length()
		shadow.Direction = toLight.Normalize()
		shadow.Color = a.mesh.Material.Shade(r.Direction, normal, shadow.Direction, light, r.Weight)
		*shadows = append(*shadows, shadow)
	}
}

// occluded tests a shadow ray against this mesh
func (a *MeshAdapter) occluded(shadow *rays.Ray, inst *scene.Instance) bool {
	if shadow.TMax == 0 {
		return false
	}
	objRay := pt.Ray{
		Origin:    inst.MInv.MulPosition(shadow.Origin),
		Direction: inst.MInv.MulDirection(shadow.Direction),
	}
	hit := a.mesh.Geometry.Intersect(objRay)
	return hit.Ok() && hit.T < shadow.TMax*offsetMultiplier
}

// cosineHemisphere draws a cosine-weighted direction about the normal
func cosineHemisphere(n pt.Vector, rng *rand.Rand) pt.Vector {
	xi1 := rng.Float64()
	xi2 := rng.Float64()

	theta := math.Acos(math.Sqrt(1 - xi1))
	phi := 2 * math.Pi * xi2

	xs := math.Sin(theta) * math.Cos(phi)
	ys := math.Cos(theta)
	zs := math.Sin(theta) * math.Sin(phi)

	y := n
	h := y
	ax, ay, az := math.Abs(h.X), math.Abs(h.Y), math.Abs(h.Z)
	switch {
	case ax <= ay && ax <= az:
		h.X = 1
	case ay <= ax && ay <= az:
		h.Y = 1
	default:
		h.Z = 1
	}

	x := h.Cross(y)
	z := x.Cross(y)

	return x.MulScalar(xs).Add(y.MulScalar(ys)).Add(z.MulScalar(zs)).Normalize()
}
