package scene

import (
	"fmt"
	"math"

	"github.com/fogleman/pt/pt"
	"gonum.org/v1/gonum/mat"
)

// Affine is a row-major 4x4 affine transform. Instances carry the forward
// transform, its inverse for moving rays into object space, and the 3x3
// inverse-transpose for normals; the inversions are done once at scene
// build through gonum.
type Affine struct {
	m [16]float64
}

// Identity returns the identity transform
func Identity() Affine {
	return Affine{m: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Translate returns a translation transform
func Translate(v pt.Vector) Affine {
	a := Identity()
	a.m[3] = v.X
	a.m[7] = v.Y
	a.m[11] = v.Z
	return a
}

// Scale returns a non-uniform scale transform
func Scale(v pt.Vector) Affine {
	a := Identity()
	a.m[0] = v.X
	a.m[5] = v.Y
	a.m[10] = v.Z
	return a
}

// Rotate returns a rotation of angle radians about the given axis
func Rotate(axis pt.Vector, angle float64) Affine {
	u := axis.Normalize()
	s, c := math.Sin(angle), math.Cos(angle)
	k := 1 - c
	return Affine{m: [16]float64{
		u.X*u.X*k + c, u.X*u.Y*k - u.Z*s, u.X*u.Z*k + u.Y*s, 0,
		u.Y*u.X*k + u.Z*s, u.Y*u.Y*k + c, u.Y*u.Z*k - u.X*s, 0,
		u.Z*u.X*k - u.Y*s, u.Z*u.Y*k + u.X*s, u.Z*u.Z*k + c, 0,
		0, 0, 0, 1,
	}}
}

// Mul returns a*b, the transform applying b first and then a
func (a Affine) Mul(b Affine) Affine {
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a.m[i*4+k] * b.m[k*4+j]
			}
			out.m[i*4+j] = sum
		}
	}
	return out
}

// MulPosition applies the transform to a point
func (a Affine) MulPosition(v pt.Vector) pt.Vector {
	return pt.Vector{
		X: a.m[0]*v.X + a.m[1]*v.Y + a.m[2]*v.Z + a.m[3],
		Y: a.m[4]*v.X + a.m[5]*v.Y + a.m[6]*v.Z + a.m[7],
		Z: a.m[8]*v.X + a.m[9]*v.Y + a.m[10]*v.Z + a.m[11],
	}
}

// MulDirection applies the transform to a direction, ignoring translation.
// The result is intentionally not normalized: parametric distances computed
// against a scaled instance stay consistent between spaces.
func (a Affine) MulDirection(v pt.Vector) pt.Vector {
	return pt.Vector{
		X: a.m[0]*v.X + a.m[1]*v.Y + a.m[2]*v.Z,
		Y: a.m[4]*v.X + a.m[5]*v.Y + a.m[6]*v.Z,
		Z: a.m[8]*v.X + a.m[9]*v.Y + a.m[10]*v.Z,
	}
}

// Inverse computes the inverse transform
func (a Affine) Inverse() (Affine, error) {
	var src mat.Dense
	src.ReuseAs(4, 4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			src.Set(i, j, a.m[i*4+j])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(&src); err != nil {
		return Affine{}, fmt.Errorf("singular instance transform: %w", err)
	}
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out.m[i*4+j] = inv.At(i, j)
		}
	}
	return out, nil
}

// NormalMatrix is the row-major upper-3x3 inverse-transpose of an instance
// transform, applied to object-space normals
type NormalMatrix struct {
	m [9]float64
}

// NormalMatrixOf computes the normal matrix for the given transform
func NormalMatrixOf(a Affine) (NormalMatrix, error) {
	upper := mat.NewDense(3, 3, []float64{
		a.m[0], a.m[1], a.m[2],
		a.m[4], a.m[5], a.m[6],
		a.m[8], a.m[9], a.m[10],
	})
	var inv mat.Dense
	if err := inv.Inverse(upper); err != nil {
		return NormalMatrix{}, fmt.Errorf("singular instance transform: %w", err)
	}
	var out NormalMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.m[i*3+j] = inv.At(j, i)
		}
	}
	return out, nil
}

// MulNormal transforms and renormalizes an object-space normal
func (n NormalMatrix) MulNormal(v pt.Vector) pt.Vector {
	return pt.Vector{
		X: n.m[0]*v.X + n.m[1]*v.Y + n.m[2]*v.Z,
		Y: n.m[3]*v.X + n.m[4]*v.Y + n.m[5]*v.Z,
		Z: n.m[6]*v.X + n.m[7]*v.Y + n.m[8]*v.Z,
	}.Normalize()
}
