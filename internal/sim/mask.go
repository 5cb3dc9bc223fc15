package sim

import (
	"fmt"
	"image"
	"image/color"
)

// Mask is the static collision raster of a track. Lookups outside the
// raster report blocked so that rays stop and corners collide at the edge.
type Mask struct {
	width, height int
	blocked       []bool
}

// NewMask returns an all-free mask of the given size.
func NewMask(width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: mask must have positive dimensions, got %dx%d", ErrInvalidConfig, width, height)
	}
	return &Mask{
		width:   width,
		height:  height,
		blocked: make([]bool, width*height),
	}, nil
}

// MaskFromImage marks every pixel whose non-premultiplied RGBA equals
// border exactly.
func MaskFromImage(img image.Image, border color.NRGBA) (*Mask, error) {
	b := img.Bounds()
	m, err := NewMask(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c == border {
				m.blocked[y*m.width+x] = true
			}
		}
	}
	return m, nil
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.width }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.height }

// Set marks a pixel. Coordinates outside the mask are ignored.
func (m *Mask) Set(x, y int, blocked bool) {
	if !m.inside(x, y) {
		return
	}
	m.blocked[y*m.width+x] = blocked
}

// Fill marks every pixel of r that lies inside the mask.
func (m *Mask) Fill(r image.Rectangle, blocked bool) {
	r = r.Intersect(image.Rect(0, 0, m.width, m.height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.blocked[y*m.width+x] = blocked
		}
	}
}

// Blocked reports whether a pixel is border. Out-of-range is blocked.
func (m *Mask) Blocked(x, y int) bool {
	if !m.inside(x, y) {
		return true
	}
	return m.blocked[y*m.width+x]
}

// BlockedCount returns the number of border pixels.
func (m *Mask) BlockedCount() int {
	n := 0
	for _, b := range m.blocked {
		if b {
			n++
		}
	}
	return n
}

func (m *Mask) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height
}
