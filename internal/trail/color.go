package trail

import (
	"image/color"
	"math"
)

// goldenAngle spreads consecutive keys around the hue circle.
const goldenAngle = 137.5

// ColorFor returns a bright, saturated colour for an agent key. The same
// key always gives the same colour.
func ColorFor(key int) color.NRGBA {
	hue := math.Mod(float64(key)*goldenAngle, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := hsvToRGB(hue, 0.92, 0.92)
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// hsvToRGB converts hue in degrees and s, v in [0, 1].
func hsvToRGB(h, s, v float64) (r, g, b uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return uint8(math.Round((rf + m) * 255)), uint8(math.Round((gf + m) * 255)), uint8(math.Round((bf + m) * 255))
}
