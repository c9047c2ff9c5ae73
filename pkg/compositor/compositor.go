package compositor

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/prismrt/prism/pkg/comm"
	"github.com/prismrt/prism/pkg/log"
	"github.com/prismrt/prism/pkg/rays"
)

// Compositor accumulates per-pixel contributions on this rank and merges
// all rank framebuffers on rank 0. Accumulation is striped: one mutex per
// pixel column, so shuffle chunks depositing into different columns do not
// contend.
type Compositor struct {
	width  int
	height int

	stripes []sync.Mutex
	accum   []rays.Color
	rgb     []byte

	frames chan *comm.Frame
}

// New creates a compositor for the film size and world size
func New(width, height, worldSize int) *Compositor {
	return &Compositor{
		width:   width,
		height:  height,
		stripes: make([]sync.Mutex, width),
		accum:   make([]rays.Color, width*height),
		rgb:     make([]byte, width*height*3),
		frames:  make(chan *comm.Frame, worldSize),
	}
}

// Accumulate deposits a shadow ray's pre-shaded color into its pixel
func (c *Compositor) Accumulate(r *rays.Ray) {
	id := int(r.ID)
	if id < 0 || id >= len(c.accum) {
		return
	}
	mu := &c.stripes[id%c.width]
	mu.Lock()
	c.accum[id] = c.accum[id].Add(r.Color)
	mu.Unlock()
}

// LocalComposite folds the accumulators into the rank-local 24-bit buffer
// in parallel chunks
func (c *Compositor) LocalComposite() {
	size := c.width * c.height
	chunk := size / (runtime.NumCPU() * 4)
	if chunk < 2 {
		chunk = 2
	}
	var g errgroup.Group
	for start := 0; start < size; start += chunk {
		end := start + chunk
		if end > size {
			end = size
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				c.rgb[i*3+0] = channelByte(c.accum[i].R)
				c.rgb[i*3+1] = channelByte(c.accum[i].G)
				c.rgb[i*3+2] = channelByte(c.accum[i].B)
			}
			return nil
		})
	}
	g.Wait()
}

func channelByte(v float64) byte {
	scaled := int(v * 255)
	if scaled > 255 {
		return 255
	}
	if scaled < 0 {
		return 0
	}
	return byte(scaled)
}

// HandleFrame is the communicator entry point for peer framebuffers
func (c *Compositor) HandleFrame(msg *comm.Message) {
	frame, err := comm.DecodeFrame(msg)
	if err != nil {
		// a malformed frame denotes a broken peer; the gather cannot
		// complete without it
		logger := log.WithComponent("compositor")
		logger.Fatal().Err(err).Msg("malformed frame")
	}
	c.frames <- frame
}

// Gather completes the frame: every rank folds its accumulators locally,
// cohort ranks ship their buffer to rank 0, and rank 0 sums the channels
// under the black-background assumption.
func (c *Compositor) Gather(cm *comm.Communicator) error {
	c.LocalComposite()
	if cm == nil || cm.Size() <= 1 {
		return nil
	}

	if cm.Rank() != 0 {
		frame := comm.Frame{
			Sender: int32(cm.Rank()),
			Width:  uint32(c.width),
			Height: uint32(c.height),
			RGB:    c.rgb,
		}
		if err := cm.Send(frame.Encode(), 0); err != nil {
			return fmt.Errorf("compositor: sending frame: %w", err)
		}
		return nil
	}

	for received := 0; received < cm.Size()-1; received++ {
		frame := <-c.frames
		if int(frame.Width) != c.width || int(frame.Height) != c.height {
			return fmt.Errorf("compositor: rank %d sent %dx%d frame, want %dx%d",
				frame.Sender, frame.Width, frame.Height, c.width, c.height)
		}
		c.merge(frame.RGB)
	}
	return nil
}

// merge adds a peer buffer channel-wise with saturation
func (c *Compositor) merge(peer []byte) {
	size := c.width * c.height * 3
	chunk := size / (runtime.NumCPU() * 4)
	if chunk < 2 {
		chunk = 2
	}
	var g errgroup.Group
	for start := 0; start < size; start += chunk {
		end := start + chunk
		if end > size {
			end = size
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				sum := int(c.rgb[i]) + int(peer[i])
				if sum > 255 {
					sum = 255
				}
				c.rgb[i] = byte(sum)
			}
			return nil
		})
	}
	g.Wait()
}

// RGB returns the rank-local 24-bit framebuffer (the composited frame on
// rank 0 after Gather)
func (c *Compositor) RGB() []byte {
	return c.rgb
}

// Image renders the framebuffer as an image for encoding
func (c *Compositor) Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			i := (y*c.width + x) * 3
			img.SetRGBA(x, y, color.RGBA{R: c.rgb[i], G: c.rgb[i+1], B: c.rgb[i+2], A: 255})
		}
	}
	return img
}
