package sim

import "math"

// Kinematics is the per-frame input and output of a YawHook.
type Kinematics struct {
	Speed     float64
	Wheelbase float64
	Delta     float64 // front-wheel angle, radians
	YawRate   float64 // radians per frame
}

// YawHook adjusts heading rate and speed after the bicycle model. The
// returned speed is clamped to the vehicle's range by the caller.
type YawHook interface {
	AdjustYaw(k Kinematics) (Kinematics, bool)
}

// DriftModel adds oversteer and scrubs speed once lateral acceleration
// exceeds Friction*Gravity. The constants are tuned by feel and carry no
// physical units.
type DriftModel struct {
	Friction  float64 `json:"friction"`
	Gravity   float64 `json:"gravity"`
	Oversteer float64 `json:"oversteer"`
	SpeedLoss float64 `json:"speed_loss"`
}

// DefaultDriftModel returns hand-tuned constants that drift only in tight turns near top speed.
func DefaultDriftModel() DriftModel {
	return DriftModel{Friction: 0.5, Gravity: 0.4, Oversteer: 0.3, SpeedLoss: 1.0}
}

// AdjustYaw implements YawHook. The bool reports a drifting frame.
func (d DriftModel) AdjustYaw(k Kinematics) (Kinematics, bool) {
	aLat := (k.Speed * k.Speed / k.Wheelbase) * math.Abs(math.Tan(k.Delta))
	limit := d.Friction * d.Gravity
	if aLat <= limit {
		return k, false
	}
	excess := (aLat - limit) / (limit + 1e-6)
	k.YawRate += d.Oversteer * excess * math.Copysign(1, k.Delta)
	k.Speed -= d.SpeedLoss * excess
	return k, true
}
