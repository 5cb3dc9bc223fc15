// Package track turns a track image into a collision mask.
package track

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ukydev/trackevolve/internal/sim"
)

// ErrDecode is returned when the track raster cannot be read as an image.
var ErrDecode = errors.New("track image could not be decoded")

// DefaultBorder is opaque white, the border colour of the bundled tracks.
var DefaultBorder = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Load opens and decodes the image at path. It returns the mask and the
// detected image format.
func Load(path string, border color.NRGBA) (*sim.Mask, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open track %s: %w", path, err)
	}
	defer f.Close()

	mask, format, err := Decode(f, border)
	if err != nil {
		return nil, "", fmt.Errorf("load track %s: %w", path, err)
	}
	log.WithFields(log.Fields{
		"path":    path,
		"format":  format,
		"width":   mask.Width(),
		"height":  mask.Height(),
		"blocked": mask.BlockedCount(),
	}).Debug("Loaded track")
	return mask, format, nil
}

// Decode reads any registered image format (png, jpeg, gif, bmp, tiff,
// webp) from r and marks pixels that equal border exactly.
func Decode(r io.Reader, border color.NRGBA) (*sim.Mask, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	mask, err := sim.MaskFromImage(img, border)
	if err != nil {
		return nil, "", err
	}
	return mask, format, nil
}

// ParseColor parses "r,g,b" or "r,g,b,a" with 0-255 components. Alpha
// defaults to 255.
func ParseColor(s string) (color.NRGBA, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("colour %q: want r,g,b[,a]", s)
	}
	var c [4]uint8
	c[3] = 255
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("colour %q component %d: %w", s, i, err)
		}
		c[i] = uint8(n)
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}
