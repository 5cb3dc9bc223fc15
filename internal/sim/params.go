package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a vehicle, control law or mask cannot
// be used for simulation. It is fatal: nothing is constructed.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultSensorAngles are the sensor directions relative to heading, in degrees.
var DefaultSensorAngles = []float64{-90, -45, 0, 45, 90}

// VehicleSpec holds the per-vehicle constants fixed at creation.
type VehicleSpec struct {
	Width        float64   `json:"width"`  // pixels
	Height       float64   `json:"height"` // pixels
	Wheelbase    float64   `json:"wheelbase"`
	MaxSteerDeg  float64   `json:"max_steer_deg"` // physical front-wheel angle at full lock
	VMin         float64   `json:"v_min"`         // pixels/frame
	VMax         float64   `json:"v_max"`         // pixels/frame
	SensorRange  int       `json:"sensor_range"`  // ray-march steps
	SensorAngles []float64 `json:"sensor_angles"` // degrees relative to heading
}

// DefaultVehicleSpec returns the 60x60 px car used on the reference tracks.
func DefaultVehicleSpec() VehicleSpec {
	return VehicleSpec{
		Width:        60,
		Height:       60,
		Wheelbase:    50,
		MaxSteerDeg:  30,
		VMin:         2,
		VMax:         4.5,
		SensorRange:  600,
		SensorAngles: append([]float64(nil), DefaultSensorAngles...),
	}
}

// Validate reports the first out-of-range field, wrapping ErrInvalidConfig.
func (s VehicleSpec) Validate() error {
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("%w: vehicle size must be positive, got %vx%v", ErrInvalidConfig, s.Width, s.Height)
	case s.Wheelbase <= 0:
		return fmt.Errorf("%w: wheelbase must be positive, got %v", ErrInvalidConfig, s.Wheelbase)
	case s.MaxSteerDeg <= 0 || s.MaxSteerDeg >= 90:
		return fmt.Errorf("%w: max steer must be in (0, 90) degrees, got %v", ErrInvalidConfig, s.MaxSteerDeg)
	case s.VMax <= 0:
		return fmt.Errorf("%w: v_max must be positive, got %v", ErrInvalidConfig, s.VMax)
	case s.VMin < 0 || s.VMin > s.VMax:
		return fmt.Errorf("%w: v_min must be in [0, v_max], got %v", ErrInvalidConfig, s.VMin)
	case s.SensorRange <= 0:
		return fmt.Errorf("%w: sensor range must be positive, got %d", ErrInvalidConfig, s.SensorRange)
	case len(s.SensorAngles) == 0:
		return fmt.Errorf("%w: at least one sensor angle is required", ErrInvalidConfig)
	}
	return nil
}

// ControlLaw holds the speed-governing parameters shared by every vehicle on a track.
type ControlLaw struct {
	TurnFloorSpeed   float64 `json:"turn_floor_speed"`   // speed limit at full lock
	TurnExponent     float64 `json:"turn_exponent"`      // shape of the limit curve
	LimitSmoothAlpha float64 `json:"limit_smooth_alpha"` // low-pass weight on the speed limit
	SteerSmoothAlpha float64 `json:"steer_smooth_alpha"` // low-pass weight on the steering command
	AccelPerStep     float64 `json:"accel_per_step"`     // speed change per frame at full throttle
	BrakePerStep     float64 `json:"brake_per_step"`     // bleed-off per frame while over the limit
	EdgeMargin       float64 `json:"edge_margin"`        // pixels kept between the sprite and the image edge
}

// DefaultControlLaw returns the tuned law for the given frame rate and top
// speed: 0 to vMax in 1.6 s, limit bleed-off at twice that rate.
func DefaultControlLaw(fps int, vMax float64) ControlLaw {
	if fps <= 0 {
		fps = 60
	}
	accel := vMax / (1.6 * float64(fps))
	return ControlLaw{
		TurnFloorSpeed:   1.0,
		TurnExponent:     1.6,
		LimitSmoothAlpha: 0.4,
		SteerSmoothAlpha: 0.5,
		AccelPerStep:     accel,
		BrakePerStep:     2 * accel,
		EdgeMargin:       20,
	}
}

// Validate checks the law and wraps ErrInvalidConfig on failure.
func (c ControlLaw) Validate() error {
	switch {
	case c.TurnFloorSpeed < 0:
		return fmt.Errorf("%w: turn floor speed must be non-negative, got %v", ErrInvalidConfig, c.TurnFloorSpeed)
	case c.TurnExponent <= 0:
		return fmt.Errorf("%w: turn exponent must be positive, got %v", ErrInvalidConfig, c.TurnExponent)
	case c.LimitSmoothAlpha <= 0 || c.LimitSmoothAlpha > 1:
		return fmt.Errorf("%w: limit_smooth_alpha must be in (0, 1], got %v", ErrInvalidConfig, c.LimitSmoothAlpha)
	case c.SteerSmoothAlpha <= 0 || c.SteerSmoothAlpha > 1:
		return fmt.Errorf("%w: steer_smooth_alpha must be in (0, 1], got %v", ErrInvalidConfig, c.SteerSmoothAlpha)
	case c.AccelPerStep < 0 || c.BrakePerStep < 0:
		return fmt.Errorf("%w: per-step rates must be non-negative", ErrInvalidConfig)
	case c.EdgeMargin < 0:
		return fmt.Errorf("%w: edge margin must be non-negative, got %v", ErrInvalidConfig, c.EdgeMargin)
	}
	return nil
}
