package sim

import (
	"image"
	"math"
)

// Pose is a start position (top-left of the sprite) and heading in degrees.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// SensorReading is the result of one ray: the pixel where the march
// stopped and the number of unit steps taken from the centre.
type SensorReading struct {
	Hit      image.Point `json:"hit"`
	Distance float64     `json:"distance"`
}

// cornerOffsets are the footprint corners relative to heading, in degrees.
var cornerOffsets = [4]float64{30, 150, 210, 330}

// Vehicle is the per-agent simulation state. It is mutated only by
// Track.Step and the Reset methods and must not be shared between
// goroutines while stepping.
type Vehicle struct {
	spec        VehicleSpec
	start       Pose
	maxSteerRad float64

	pos           Point
	angle         float64
	speed         float64
	steerSmoothed float64
	limitSmoothed float64
	drifting      bool

	center  Point
	corners [4]Point
	sensors []SensorReading

	alive    bool
	distance float64
	frames   int
}

// State is a copy of a vehicle's observable state.
type State struct {
	Position      Point           `json:"position"`
	Center        Point           `json:"center"`
	Angle         float64         `json:"angle"`
	Speed         float64         `json:"speed"`
	SteerSmoothed float64         `json:"steer_smoothed"`
	LimitSmoothed float64         `json:"limit_smoothed"`
	Corners       [4]Point        `json:"corners"`
	Sensors       []SensorReading `json:"sensors"`
	Alive         bool            `json:"alive"`
	Drifting      bool            `json:"drifting"`
	Distance      float64         `json:"distance"`
	Frames        int             `json:"frames"`
}

// NewVehicle validates spec and places a vehicle at start.
func NewVehicle(spec VehicleSpec, start Pose) (*Vehicle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec.SensorAngles = append([]float64(nil), spec.SensorAngles...)
	v := &Vehicle{
		spec:        spec,
		maxSteerRad: spec.MaxSteerDeg * math.Pi / 180,
		sensors:     make([]SensorReading, 0, len(spec.SensorAngles)),
	}
	v.ResetTo(start)
	return v, nil
}

// Reset returns the vehicle to its construction pose with zeroed speed,
// smoothing memory and stats.
func (v *Vehicle) Reset() {
	v.ResetTo(v.start)
}

// ResetTo is Reset with a new start pose, which later Resets reuse.
func (v *Vehicle) ResetTo(start Pose) {
	start.Angle = normalizeDegrees(start.Angle)
	v.start = start
	v.pos = Point{X: start.X, Y: start.Y}
	v.angle = start.Angle
	v.speed = 0
	v.steerSmoothed = 0
	v.limitSmoothed = v.spec.VMax
	v.drifting = false
	v.sensors = v.sensors[:0]
	v.alive = true
	v.distance = 0
	v.frames = 0
	v.updateFootprint()
}

func (v *Vehicle) updateFootprint() {
	v.center = Point{X: v.pos.X + v.spec.Width/2, Y: v.pos.Y + v.spec.Height/2}
	r := v.spec.Width / 2
	for i, off := range cornerOffsets {
		dx, dy := heading(v.angle + off)
		v.corners[i] = Point{X: v.center.X + dx*r, Y: v.center.Y + dy*r}
	}
}

// Observation returns the controller input vector: each sensor distance
// divided by denominator and truncated. Entries are zero until the
// first step.
func (v *Vehicle) Observation(denominator float64) []float64 {
	if denominator <= 0 {
		denominator = 1
	}
	out := make([]float64, len(v.spec.SensorAngles))
	for i, r := range v.sensors {
		out[i] = math.Floor(r.Distance / denominator)
	}
	return out
}

// Read-only views of the vehicle's configuration and current state.

func (v *Vehicle) Spec() VehicleSpec      { return v.spec }
func (v *Vehicle) Start() Pose            { return v.start }
func (v *Vehicle) Position() Point        { return v.pos }
func (v *Vehicle) Center() Point          { return v.center }
func (v *Vehicle) Angle() float64         { return v.angle }
func (v *Vehicle) Speed() float64         { return v.speed }
func (v *Vehicle) SteerSmoothed() float64 { return v.steerSmoothed }
func (v *Vehicle) LimitSmoothed() float64 { return v.limitSmoothed }
func (v *Vehicle) Corners() [4]Point      { return v.corners }
func (v *Vehicle) Alive() bool            { return v.alive }
func (v *Vehicle) Drifting() bool         { return v.drifting }
func (v *Vehicle) Distance() float64      { return v.distance }
func (v *Vehicle) Frames() int            { return v.frames }

// Sensors returns a copy of the current readings in configured angle order.
func (v *Vehicle) Sensors() []SensorReading {
	return append([]SensorReading(nil), v.sensors...)
}

// State returns a snapshot safe to keep after further steps.
func (v *Vehicle) State() State {
	return State{
		Position:      v.pos,
		Center:        v.center,
		Angle:         v.angle,
		Speed:         v.speed,
		SteerSmoothed: v.steerSmoothed,
		LimitSmoothed: v.limitSmoothed,
		Corners:       v.corners,
		Sensors:       v.Sensors(),
		Alive:         v.alive,
		Drifting:      v.drifting,
		Distance:      v.distance,
		Frames:        v.frames,
	}
}
