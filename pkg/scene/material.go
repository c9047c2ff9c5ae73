package scene

import (
	"math"

	"github.com/fogleman/pt/pt"

	"github.com/prismrt/prism/pkg/rays"
)

// MaterialKind selects the material variant
type MaterialKind int

const (
	// Lambert is a pure diffuse material
	Lambert MaterialKind = iota
	// Phong adds a specular lobe around the mirror direction
	Phong
	// BlinnPhong uses the half-vector specular lobe
	BlinnPhong
	// WavefrontObj carries coefficients read from an OBJ material library
	WavefrontObj
)

// Material is a tagged material variant. Kd and Ks are RGB coefficient
// triples; Alpha is the specular exponent for the glossy variants.
type Material struct {
	Kind  MaterialKind
	Kd    pt.Vector
	Ks    pt.Vector
	Alpha float64
}

// NewLambert builds a diffuse material
func NewLambert(kd pt.Vector) Material {
	return Material{Kind: Lambert, Kd: kd}
}

// NewPhong builds a Phong material
func NewPhong(kd, ks pt.Vector, alpha float64) Material {
	return Material{Kind: Phong, Kd: kd, Ks: ks, Alpha: alpha}
}

// NewBlinnPhong builds a Blinn-Phong material
func NewBlinnPhong(kd, ks pt.Vector, alpha float64) Material {
	return Material{Kind: BlinnPhong, Kd: kd, Ks: ks, Alpha: alpha}
}

// Shade evaluates the material at a hit point for one light. The incident
// direction points into the surface, lightDir points from the hit toward the
// light, and both are unit vectors. The weight is the hit ray's carried
// weight; the returned color is the pre-shaded contribution a shadow ray
// deposits if it reaches the light unoccluded.
func (m Material) Shade(incident, normal, lightDir pt.Vector, light Light, weight float64) rays.Color {
	if light.Kind == AmbientLight {
		c := mulRGB(m.Kd, light.Color).MulScalar(weight)
		return rays.Color{R: c.X, G: c.Y, B: c.Z, A: 1}
	}

	ndotl := math.Max(0, normal.Dot(lightDir))
	out := mulRGB(m.Kd, light.Color).MulScalar(ndotl)

	switch m.Kind {
	case Phong:
		view := incident.Negate()
		reflected := normal.MulScalar(2 * lightDir.Dot(normal)).Sub(lightDir)
		spec := math.Pow(math.Max(0, reflected.Dot(view)), m.Alpha)
		out = out.Add(mulRGB(m.Ks, light.Color).MulScalar(spec))
	case BlinnPhong, WavefrontObj:
		half := lightDir.Sub(incident).Normalize()
		spec := math.Pow(math.Max(0, normal.Dot(half)), m.Alpha)
		out = out.Add(mulRGB(m.Ks, light.Color).MulScalar(spec))
	}

	out = out.MulScalar(weight)
	return rays.Color{R: out.X, G: out.Y, B: out.Z, A: 1}
}

func mulRGB(a, b pt.Vector) pt.Vector {
	return pt.Vector{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}
