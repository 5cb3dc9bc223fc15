package sim

import (
	"image"
	"math"
)

// Point is a position in track pixel space, y growing downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel returns the pixel containing p.
func (p Point) Pixel() image.Point {
	return image.Pt(int(math.Floor(p.X)), int(math.Floor(p.Y)))
}

// heading returns the unit step for a heading in degrees. Angles are
// measured counter-clockwise on screen, hence 360-deg against an image
// whose y axis points down.
func heading(deg float64) (dx, dy float64) {
	rad := (360 - deg) * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// normalizeDegrees maps a into [0, 360).
func normalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// clampUnit clamps a command to [-1, 1]; NaN reads as no input.
func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, -1, 1)
}
