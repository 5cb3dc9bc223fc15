package sim

import (
	"fmt"
	"math"
)

// Track is the immutable environment shared by all vehicles of an
// episode. Step may be called concurrently for distinct vehicles.
type Track struct {
	mask    *Mask
	law     ControlLaw
	yawHook YawHook
}

// Option configures a Track.
type Option func(*Track)

// WithYawHook installs an extension that may alter the heading rate and
// speed after the bicycle model, e.g. DriftModel.
func WithYawHook(h YawHook) Option {
	return func(t *Track) { t.yawHook = h }
}

// NewTrack binds a loaded mask to a control law.
func NewTrack(mask *Mask, law ControlLaw, opts ...Option) (*Track, error) {
	if mask == nil || mask.width <= 0 || mask.height <= 0 {
		return nil, fmt.Errorf("%w: track needs a non-empty mask", ErrInvalidConfig)
	}
	if err := law.Validate(); err != nil {
		return nil, err
	}
	t := &Track{mask: mask, law: law}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Accessors for the bound mask, control law and extension state.

func (t *Track) Mask() *Mask      { return t.mask }
func (t *Track) Law() ControlLaw  { return t.law }
func (t *Track) Width() int       { return t.mask.width }
func (t *Track) Height() int      { return t.mask.height }
func (t *Track) HasYawHook() bool { return t.yawHook != nil }

// TurnSpeedLimit is the instantaneous speed ceiling for v's smoothed
// steering: v_max at centre, TurnFloorSpeed at full lock.
func (t *Track) TurnSpeedLimit(v *Vehicle) float64 {
	delta := v.steerSmoothed * v.maxSteerRad
	x := math.Min(1, math.Abs(delta)/v.maxSteerRad)
	floor := t.law.TurnFloorSpeed
	return floor + (v.spec.VMax-floor)*(1-math.Pow(x, t.law.TurnExponent))
}

// Step advances v by one frame and reports whether it is alive
// afterwards. Commands are clamped to [-1, 1]. Step does not latch a
// crash; callers stop stepping dead vehicles.
func (t *Track) Step(v *Vehicle, steerCmd, accelCmd float64) bool {
	steerCmd = clampUnit(steerCmd)
	accelCmd = clampUnit(accelCmd)
	law := t.law
	spec := v.spec

	v.steerSmoothed = clampUnit((1-law.SteerSmoothAlpha)*v.steerSmoothed + law.SteerSmoothAlpha*steerCmd)
	delta := v.steerSmoothed * v.maxSteerRad

	// Kinematic bicycle: radians of heading change per frame.
	yawRate := (v.speed / spec.Wheelbase) * math.Tan(delta)
	v.drifting = false
	if t.yawHook != nil {
		k, drifting := t.yawHook.AdjustYaw(Kinematics{
			Speed:     v.speed,
			Wheelbase: spec.Wheelbase,
			Delta:     delta,
			YawRate:   yawRate,
		})
		yawRate = k.YawRate
		if drifting {
			v.speed = clamp(k.Speed, spec.VMin, spec.VMax)
		}
		v.drifting = drifting
	}
	v.angle = normalizeDegrees(v.angle + yawRate*180/math.Pi)

	v.limitSmoothed = (1-law.LimitSmoothAlpha)*v.limitSmoothed + law.LimitSmoothAlpha*t.TurnSpeedLimit(v)

	v.speed += law.AccelPerStep * accelCmd
	if accelCmd >= 0 {
		v.speed = math.Min(v.speed, spec.VMax)
	} else {
		v.speed = math.Max(v.speed, spec.VMin)
	}
	if v.speed > v.limitSmoothed {
		v.speed = math.Max(v.limitSmoothed, v.speed-law.BrakePerStep)
	}
	v.speed = clamp(v.speed, spec.VMin, spec.VMax)

	dx, dy := heading(v.angle)
	m := law.EdgeMargin
	v.pos.X = clamp(v.pos.X+dx*v.speed, m, float64(t.mask.width)-spec.Width-m)
	v.pos.Y = clamp(v.pos.Y+dy*v.speed, m, float64(t.mask.height)-spec.Height-m)
	v.updateFootprint()

	v.alive = !t.collides(v)
	t.sweepSensors(v)

	v.distance += v.speed
	v.frames++
	return v.alive
}

// Reward is the per-frame average of distance normalised by half the
// vehicle width. Zero before the first frame.
func (t *Track) Reward(v *Vehicle) float64 {
	if v.frames == 0 {
		return 0
	}
	return (v.distance / (v.spec.Width / 2)) / float64(v.frames)
}

func (t *Track) collides(v *Vehicle) bool {
	for _, c := range v.corners {
		p := c.Pixel()
		if t.mask.Blocked(p.X, p.Y) {
			return true
		}
	}
	return false
}

func (t *Track) sweepSensors(v *Vehicle) {
	v.sensors = v.sensors[:0]
	for _, rel := range v.spec.SensorAngles {
		v.sensors = append(v.sensors, t.castRay(v.center, v.angle+rel, v.spec.SensorRange))
	}
}

// castRay marches one pixel at a time from origin until it reaches a
// blocked pixel or maxRange steps.
func (t *Track) castRay(origin Point, deg float64, maxRange int) SensorReading {
	dx, dy := heading(deg)
	length := 0
	hit := origin.Pixel()
	for !t.mask.Blocked(hit.X, hit.Y) && length < maxRange {
		length++
		hit = Point{X: origin.X + dx*float64(length), Y: origin.Y + dy*float64(length)}.Pixel()
	}
	return SensorReading{Hit: hit, Distance: float64(length)}
}
