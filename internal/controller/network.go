package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when network weights do not line up.
var ErrShape = errors.New("network shape mismatch")

// Layer is a dense layer: Weights[out][in] and one bias per output.
type Layer struct {
	Weights [][]float64 `json:"weights" bson:"weights"`
	Biases  []float64   `json:"biases" bson:"biases"`
}

// FeedForward is a dense network with tanh on every layer. The last
// layer must have exactly two outputs: steer and accel.
type FeedForward struct {
	Layers []Layer `json:"layers" bson:"layers"`
}

// Inputs returns the expected observation length.
func (n *FeedForward) Inputs() int {
	if len(n.Layers) == 0 || len(n.Layers[0].Weights) == 0 {
		return 0
	}
	return len(n.Layers[0].Weights[0])
}

// Validate checks that the layers chain and end in two outputs. inputs
// is the observation length the network will be fed.
func (n *FeedForward) Validate(inputs int) error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrShape)
	}
	if inputs <= 0 {
		return fmt.Errorf("%w: %d inputs", ErrShape, inputs)
	}
	width := inputs
	for i, l := range n.Layers {
		if len(l.Weights) == 0 {
			return fmt.Errorf("%w: layer %d has no outputs", ErrShape, i)
		}
		if len(l.Biases) != len(l.Weights) {
			return fmt.Errorf("%w: layer %d has %d biases for %d outputs", ErrShape, i, len(l.Biases), len(l.Weights))
		}
		for j, row := range l.Weights {
			if len(row) != width {
				return fmt.Errorf("%w: layer %d row %d has %d weights, want %d", ErrShape, i, j, len(row), width)
			}
		}
		width = len(l.Weights)
	}
	if width != 2 {
		return fmt.Errorf("%w: final layer has %d outputs, want 2", ErrShape, width)
	}
	return nil
}

// Act implements Controller. It assumes Validate succeeded.
func (n *FeedForward) Act(inputs []float64) (float64, float64) {
	x := mat.NewVecDense(len(inputs), inputs)
	for _, l := range n.Layers {
		y := mat.NewVecDense(len(l.Biases), nil)
		y.MulVec(l.matrix(), x)
		y.AddVec(y, mat.NewVecDense(len(l.Biases), l.Biases))
		for j := 0; j < y.Len(); j++ {
			y.SetVec(j, math.Tanh(y.AtVec(j)))
		}
		x = y
	}
	return x.AtVec(0), x.AtVec(1)
}

// matrix lays Weights out row-major as an out x in dense matrix.
func (l Layer) matrix() *mat.Dense {
	rows, cols := len(l.Weights), len(l.Weights[0])
	data := make([]float64, 0, rows*cols)
	for _, row := range l.Weights {
		data = append(data, row...)
	}
	return mat.NewDense(rows, cols, data)
}

// DecodeFeedForward reads one network as JSON and validates it against
// the observation length.
func DecodeFeedForward(r io.Reader, inputs int) (*FeedForward, error) {
	var n FeedForward
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if err := n.Validate(inputs); err != nil {
		return nil, err
	}
	return &n, nil
}

// LoadFeedForward reads a network file. The file holds either a single
// network object or an array of them.
func LoadFeedForward(path string, inputs int) ([]*FeedForward, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks %s: %w", path, err)
	}
	var nets []*FeedForward
	if err := json.Unmarshal(data, &nets); err != nil {
		var one FeedForward
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("decode networks %s: %w", path, err)
		}
		nets = []*FeedForward{&one}
	}
	for i, n := range nets {
		if n == nil {
			return nil, fmt.Errorf("%w: network %d is null", ErrShape, i)
		}
		if err := n.Validate(inputs); err != nil {
			return nil, fmt.Errorf("network %d: %w", i, err)
		}
	}
	return nets, nil
}

// RandomFeedForward builds a network with uniform weights in [-scale,
// scale]. sizes lists the layer widths from input to output; the last
// must be 2.
func RandomFeedForward(rng *rand.Rand, scale float64, sizes ...int) (*FeedForward, error) {
	if len(sizes) < 2 || sizes[len(sizes)-1] != 2 {
		return nil, fmt.Errorf("%w: sizes %v must end in 2 outputs", ErrShape, sizes)
	}
	n := &FeedForward{Layers: make([]Layer, len(sizes)-1)}
	for i := range n.Layers {
		in, out := sizes[i], sizes[i+1]
		if in <= 0 || out <= 0 {
			return nil, fmt.Errorf("%w: non-positive layer width in %v", ErrShape, sizes)
		}
		l := Layer{Weights: make([][]float64, out), Biases: make([]float64, out)}
		for j := range l.Weights {
			l.Weights[j] = make([]float64, in)
			for k := range l.Weights[j] {
				l.Weights[j][k] = (rng.Float64()*2 - 1) * scale
			}
			l.Biases[j] = (rng.Float64()*2 - 1) * scale
		}
		n.Layers[i] = l
	}
	return n, nil
}
