// Package trail records where vehicles drove and renders the paths over
// the track.
package trail

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ukydev/trackevolve/internal/episode"
	"github.com/ukydev/trackevolve/internal/sim"
)

// Recorder is an episode.Observer that keeps each vehicle's centre every
// Nth frame, plus the frame it crashed on.
type Recorder struct {
	mu     sync.Mutex
	every  int
	trails map[int][]sim.Point
}

// NewRecorder samples every frames; values below 1 sample all frames.
func NewRecorder(every int) *Recorder {
	if every < 1 {
		every = 1
	}
	return &Recorder{every: every, trails: make(map[int][]sim.Point)}
}

// ObserveFrame implements episode.Observer.
func (r *Recorder) ObserveFrame(f episode.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range f.Agents {
		v := a.Vehicle
		crashed := !v.Alive() && v.Frames() == f.Index
		if (v.Alive() && f.Index%r.every == 0) || crashed {
			r.trails[a.ID] = append(r.trails[a.ID], v.Center())
		}
	}
}

// ObserveResult implements episode.Observer.
func (r *Recorder) ObserveResult(*episode.Result) {}

// Agents returns the IDs with a recorded trail, ascending.
func (r *Recorder) Agents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.trails))
	for id := range r.trails {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Trail returns a copy of one agent's samples.
func (r *Recorder) Trail(id int) []sim.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.trails[id])
}

// Reset drops all trails.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trails = make(map[int][]sim.Point)
}

// Plot draws the trails in track pixel space with the mask as backdrop.
// Image y grows downward, so it is flipped for the plot axes.
func (r *Recorder) Plot(mask *sim.Mask, title string) (*plot.Plot, error) {
	w, h := float64(mask.Width()), float64(mask.Height())

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.X.Min, p.X.Max = 0, w
	p.Y.Min, p.Y.Max = 0, h
	p.Add(plotter.NewImage(maskImage(mask), 0, 0, w, h))

	for _, id := range r.Agents() {
		pts := r.Trail(id)
		xys := make(plotter.XYs, len(pts))
		for i, pt := range pts {
			xys[i] = plotter.XY{X: pt.X, Y: h - pt.Y}
		}
		if len(xys) < 2 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("agent %d trail: %w", id, err)
		}
		line.Color = ColorFor(id)
		line.Width = vg.Points(1)
		p.Add(line)
	}
	return p, nil
}

// WritePNG renders Plot to path, 12 inches wide at the track's aspect.
func (r *Recorder) WritePNG(path string, mask *sim.Mask, title string) error {
	p, err := r.Plot(mask, title)
	if err != nil {
		return err
	}
	width := 12 * vg.Inch
	height := width * vg.Length(mask.Height()) / vg.Length(mask.Width())
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save trail plot: %w", err)
	}
	return nil
}

func maskImage(mask *sim.Mask) image.Image {
	img := image.NewGray(image.Rect(0, 0, mask.Width(), mask.Height()))
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			c := color.Gray{Y: 40}
			if mask.Blocked(x, y) {
				c = color.Gray{Y: 230}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}
