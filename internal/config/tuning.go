package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ukydev/trackevolve/internal/sim"
)

// Tuning overrides the vehicle and control-law defaults. Fields left out
// of the JSON keep their defaults through the Get* methods.
type Tuning struct {
	// Vehicle
	Width        *float64  `json:"width,omitempty"`
	Height       *float64  `json:"height,omitempty"`
	Wheelbase    *float64  `json:"wheelbase,omitempty"`
	MaxSteerDeg  *float64  `json:"max_steer_deg,omitempty"`
	VMin         *float64  `json:"v_min,omitempty"`
	VMax         *float64  `json:"v_max,omitempty"`
	SensorRange  *int      `json:"sensor_range,omitempty"`
	SensorAngles []float64 `json:"sensor_angles,omitempty"`

	// Control law
	TurnFloorSpeed   *float64 `json:"turn_floor_speed,omitempty"`
	TurnExponent     *float64 `json:"turn_exponent,omitempty"`
	LimitSmoothAlpha *float64 `json:"limit_smooth_alpha,omitempty"`
	SteerSmoothAlpha *float64 `json:"steer_smooth_alpha,omitempty"`
	AccelPerStep     *float64 `json:"accel_per_step,omitempty"`
	BrakePerStep     *float64 `json:"brake_per_step,omitempty"`
	EdgeMargin       *float64 `json:"edge_margin,omitempty"`

	// Drift extension
	Friction  *float64 `json:"friction,omitempty"`
	Gravity   *float64 `json:"gravity,omitempty"`
	Oversteer *float64 `json:"oversteer,omitempty"`
	SpeedLoss *float64 `json:"speed_loss,omitempty"`
}

// LoadTuning reads a tuning file. An empty path yields an empty Tuning.
func LoadTuning(path string) (*Tuning, error) {
	t := &Tuning{}
	if path == "" {
		return t, nil
	}
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	return t, nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// VehicleSpec applies the overrides to sim.DefaultVehicleSpec and
// validates the result.
func (t *Tuning) VehicleSpec() (sim.VehicleSpec, error) {
	s := sim.DefaultVehicleSpec()
	s.Width = getFloat(t.Width, s.Width)
	s.Height = getFloat(t.Height, s.Height)
	s.Wheelbase = getFloat(t.Wheelbase, s.Wheelbase)
	s.MaxSteerDeg = getFloat(t.MaxSteerDeg, s.MaxSteerDeg)
	s.VMin = getFloat(t.VMin, s.VMin)
	s.VMax = getFloat(t.VMax, s.VMax)
	if t.SensorRange != nil {
		s.SensorRange = *t.SensorRange
	}
	if len(t.SensorAngles) > 0 {
		s.SensorAngles = append([]float64(nil), t.SensorAngles...)
	}
	if err := s.Validate(); err != nil {
		return sim.VehicleSpec{}, err
	}
	return s, nil
}

// ControlLaw applies the overrides to sim.DefaultControlLaw. Step rates
// not given explicitly are derived from fps and vMax.
func (t *Tuning) ControlLaw(fps int, vMax float64) (sim.ControlLaw, error) {
	l := sim.DefaultControlLaw(fps, vMax)
	l.TurnFloorSpeed = getFloat(t.TurnFloorSpeed, l.TurnFloorSpeed)
	l.TurnExponent = getFloat(t.TurnExponent, l.TurnExponent)
	l.LimitSmoothAlpha = getFloat(t.LimitSmoothAlpha, l.LimitSmoothAlpha)
	l.SteerSmoothAlpha = getFloat(t.SteerSmoothAlpha, l.SteerSmoothAlpha)
	l.AccelPerStep = getFloat(t.AccelPerStep, l.AccelPerStep)
	l.BrakePerStep = getFloat(t.BrakePerStep, l.BrakePerStep)
	l.EdgeMargin = getFloat(t.EdgeMargin, l.EdgeMargin)
	if err := l.Validate(); err != nil {
		return sim.ControlLaw{}, err
	}
	if l.TurnFloorSpeed > vMax {
		return sim.ControlLaw{}, fmt.Errorf("%w: turn floor speed %v above v_max %v", sim.ErrInvalidConfig, l.TurnFloorSpeed, vMax)
	}
	return l, nil
}

// DriftModel applies the overrides to sim.DefaultDriftModel.
func (t *Tuning) DriftModel() sim.DriftModel {
	d := sim.DefaultDriftModel()
	d.Friction = getFloat(t.Friction, d.Friction)
	d.Gravity = getFloat(t.Gravity, d.Gravity)
	d.Oversteer = getFloat(t.Oversteer, d.Oversteer)
	d.SpeedLoss = getFloat(t.SpeedLoss, d.SpeedLoss)
	return d
}

// Simulation is everything needed to build tracks and vehicles.
type Simulation struct {
	Spec    sim.VehicleSpec
	Law     sim.ControlLaw
	Drift   *sim.DriftModel
	Start   sim.Pose
	Options []sim.Option
}

// Simulation resolves c and its tuning file into simulation parameters.
func (c *Config) Simulation() (*Simulation, error) {
	t, err := LoadTuning(c.TuningFile)
	if err != nil {
		return nil, err
	}
	spec, err := t.VehicleSpec()
	if err != nil {
		return nil, err
	}
	law, err := t.ControlLaw(c.FPS, spec.VMax)
	if err != nil {
		return nil, err
	}
	s := &Simulation{Spec: spec, Law: law, Start: c.Start}
	if c.DriftEnabled {
		d := t.DriftModel()
		s.Drift = &d
		s.Options = append(s.Options, sim.WithYawHook(d))
	}
	return s, nil
}
