package scene

import (
	"fmt"

	"github.com/fogleman/pt/pt"
)

// Mesh is a named piece of geometry shared by one or more instances.
// Geometry is a fogleman/pt triangle mesh; the adapter compiles it into the
// kernel's acceleration structure on first use.
type Mesh struct {
	Name     string
	Material Material
	Geometry *pt.Mesh
	// DataIndex is the position of this mesh in the ordered mesh list of
	// the scene; instance ownership derives from it, so it must be
	// identical on every rank.
	DataIndex int
}

// Bounds returns the object-space bounding box of the mesh
func (m *Mesh) Bounds() pt.Box {
	return m.Geometry.BoundingBox()
}

// Instance is a placement of a mesh in the world. All matrices are computed
// at scene build and immutable for the frame.
type Instance struct {
	ID     int
	Mesh   *Mesh
	M      Affine
	MInv   Affine
	Norm   NormalMatrix
	Bounds pt.Box
}

// NewInstance derives the inverse and normal matrices and the world bounds
func NewInstance(id int, mesh *Mesh, m Affine) (*Instance, error) {
	if mesh == nil || mesh.Geometry == nil {
		return nil, fmt.Errorf("instance %d: missing mesh", id)
	}
	inv, err := m.Inverse()
	if err != nil {
		return nil, fmt.Errorf("instance %d: %w", id, err)
	}
	norm, err := NormalMatrixOf(m)
	if err != nil {
		return nil, fmt.Errorf("instance %d: %w", id, err)
	}
	return &Instance{
		ID:     id,
		Mesh:   mesh,
		M:      m,
		MInv:   inv,
		Norm:   norm,
		Bounds: transformBox(mesh.Bounds(), m),
	}, nil
}

// transformBox bounds the eight transformed corners of b
func transformBox(b pt.Box, m Affine) pt.Box {
	first := true
	var out pt.Box
	for _, x := range []float64{b.Min.X, b.Max.X} {
		for _, y := range []float64{b.Min.Y, b.Max.Y} {
			for _, z := range []float64{b.Min.Z, b.Max.Z} {
				p := m.MulPosition(pt.Vector{X: x, Y: y, Z: z})
				if first {
					out = pt.Box{Min: p, Max: p}
					first = false
				} else {
					out.Min = out.Min.Min(p)
					out.Max = out.Max.Max(p)
				}
			}
		}
	}
	return out
}

// InstanceMap is the static instance-to-rank assignment. Every rank derives
// it from the same ordered instance list, so all ranks agree on ownership.
type InstanceMap struct {
	owner     []int
	worldSize int
}

// NewInstanceMap assigns each instance to the rank of its mesh data index
// modulo the world size
func NewInstanceMap(instances []*Instance, worldSize int) *InstanceMap {
	owner := make([]int, len(instances))
	for i, inst := range instances {
		owner[i] = inst.Mesh.DataIndex % worldSize
	}
	return &InstanceMap{owner: owner, worldSize: worldSize}
}

// Owner returns the rank owning the given instance
func (m *InstanceMap) Owner(instanceID int) int {
	return m.owner[instanceID]
}

// WorldSize returns the number of ranks in the world
func (m *InstanceMap) WorldSize() int {
	return m.worldSize
}

// Len returns the number of mapped instances
func (m *InstanceMap) Len() int {
	return len(m.owner)
}

// Film describes the output raster
type Film struct {
	Width  int
	Height int
}

// Scene is everything a rank needs to trace one frame
type Scene struct {
	Film      Film
	Camera    Camera
	Lights    []Light
	Meshes    []*Mesh
	Instances []*Instance
}

// InstanceMap builds the ownership map for the given world size
func (s *Scene) InstanceMap(worldSize int) *InstanceMap {
	return NewInstanceMap(s.Instances, worldSize)
}
