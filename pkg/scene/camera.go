package scene

import (
	"math"

	"github.com/fogleman/pt/pt"

	"github.com/prismrt/prism/pkg/rays"
)

// Camera is a pinhole camera. FOV is the horizontal field of view in
// radians.
type Camera struct {
	Eye    pt.Vector
	LookAt pt.Vector
	Up     pt.Vector
	FOV    float64
}

// PrimaryRays generates one camera ray per pixel of the film, row-major, with
// the pixel index as the stable ray id. Every rank generates the full set and
// keeps only the rays whose first hit it owns.
func (c Camera) PrimaryRays(film Film, depth int) rays.Batch {
	forward := c.LookAt.Sub(c.Eye).Normalize()
	right := forward.Cross(c.Up.Normalize()).Normalize()
	up := right.Cross(forward)

	halfWidth := math.Tan(c.FOV / 2)
	halfHeight := halfWidth * float64(film.Height) / float64(film.Width)

	batch := make(rays.Batch, 0, film.Width*film.Height)
	for y := 0; y < film.Height; y++ {
		for x := 0; x < film.Width; x++ {
			// pixel center on a projection plane one unit out
			u := (2*(float64(x)+0.5)/float64(film.Width) - 1) * halfWidth
			v := (1 - 2*(float64(y)+0.5)/float64(film.Height)) * halfHeight
			dir := forward.Add(right.MulScalar(u)).Add(up.MulScalar(v)).Normalize()
			batch = append(batch, rays.NewPrimary(int32(y*film.Width+x), c.Eye, dir, int32(depth)))
		}
	}
	return batch
}
