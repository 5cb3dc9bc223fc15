// Package controller defines what drives a vehicle: a mapping from the
// sensor observation to a steering and throttle command.
package controller

// Controller produces (steer, accel) from one observation. Outputs are
// nominally in [-1, 1]; the simulation clamps anything outside.
// A Controller may keep state between frames and is used by one
// vehicle at a time.
type Controller interface {
	Act(inputs []float64) (steer, accel float64)
}

// Func adapts a plain function to Controller.
type Func func(inputs []float64) (steer, accel float64)

// Act calls f.
func (f Func) Act(inputs []float64) (float64, float64) { return f(inputs) }

// Constant always returns the same command.
type Constant struct {
	Steer float64
	Accel float64
}

// Act implements Controller.
func (c Constant) Act([]float64) (float64, float64) { return c.Steer, c.Accel }
