package sim

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTrack(t *testing.T, w, h int, law ControlLaw, opts ...Option) *Track {
	t.Helper()
	mask, err := NewMask(w, h)
	require.NoError(t, err)
	track, err := NewTrack(mask, law, opts...)
	require.NoError(t, err)
	return track
}

func newVehicle(t *testing.T, spec VehicleSpec, start Pose) *Vehicle {
	t.Helper()
	v, err := NewVehicle(spec, start)
	require.NoError(t, err)
	return v
}

func TestNewTrack_Validation(t *testing.T) {
	mask, err := NewMask(10, 10)
	require.NoError(t, err)

	_, err = NewTrack(nil, DefaultControlLaw(60, 4.5))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	law := DefaultControlLaw(60, 4.5)
	law.SteerSmoothAlpha = 0
	_, err = NewTrack(mask, law)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	law = DefaultControlLaw(60, 4.5)
	law.TurnExponent = -1
	_, err = NewTrack(mask, law)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTrack(mask, DefaultControlLaw(60, 4.5))
	assert.NoError(t, err)
}

func TestStep_SpeedAndAngleInvariants(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 900, Y: 500, Angle: 180})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		alive := track.Step(v, rng.Float64()*6-3, rng.Float64()*6-3)
		require.True(t, alive, "open track never collides (frame %d)", i)
		require.GreaterOrEqual(t, v.Speed(), spec.VMin)
		require.LessOrEqual(t, v.Speed(), spec.VMax)
		require.GreaterOrEqual(t, v.Angle(), 0.0)
		require.Less(t, v.Angle(), 360.0)
		require.GreaterOrEqual(t, v.SteerSmoothed(), -1.0)
		require.LessOrEqual(t, v.SteerSmoothed(), 1.0)
		require.Len(t, v.Sensors(), len(spec.SensorAngles))
	}
	assert.Equal(t, 5000, v.Frames())
}

func TestStep_NaNCommandsReadAsZero(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 900, Y: 500, Angle: 10})

	track.Step(v, math.NaN(), math.NaN())
	assert.Equal(t, 0.0, v.SteerSmoothed())
	assert.Equal(t, spec.VMin, v.Speed())
	assert.Equal(t, 10.0, v.Angle())
}

func TestStep_ZeroSteerDrivesStraight(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))

	t.Run("heading 0 moves right", func(t *testing.T) {
		v := newVehicle(t, spec, Pose{X: 100, Y: 500, Angle: 0})
		for i := 0; i < 200; i++ {
			track.Step(v, 0, 1)
			require.Equal(t, 0.0, v.Angle())
		}
		assert.InDelta(t, 100+v.Distance(), v.Position().X, 1e-9)
		assert.InDelta(t, 500, v.Position().Y, 1e-9)
	})

	t.Run("heading 90 moves up", func(t *testing.T) {
		v := newVehicle(t, spec, Pose{X: 900, Y: 900, Angle: 90})
		for i := 0; i < 100; i++ {
			track.Step(v, 0, 1)
			require.Equal(t, 90.0, v.Angle())
		}
		assert.InDelta(t, 900, v.Position().X, 1e-9)
		assert.InDelta(t, 900-v.Distance(), v.Position().Y, 1e-9)
	})
}

func TestStep_PositiveSteerTurnsCounterClockwise(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 900, Y: 500, Angle: 0})

	track.Step(v, 0, 1) // pick up speed first; heading is fixed at rest
	for i := 0; i < 5; i++ {
		track.Step(v, 1, 1)
	}
	assert.Greater(t, v.Angle(), 0.0)
	assert.Less(t, v.Angle(), 90.0)
	assert.Less(t, v.Position().Y, 500.0, "turning left on screen climbs toward y=0")
}

func TestStep_FullLockSpeedCeiling(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	law.TurnFloorSpeed = 3
	track := openTrack(t, 1000, 1000, law)
	v := newVehicle(t, spec, Pose{X: 470, Y: 470, Angle: 0})

	for i := 0; i < 400; i++ {
		track.Step(v, 1, 1)
		if i >= 200 {
			require.LessOrEqual(t, v.Speed(), law.TurnFloorSpeed+1e-9, "frame %d", i)
		}
	}
	assert.InDelta(t, law.TurnFloorSpeed, v.LimitSmoothed(), 1e-9)
	assert.InDelta(t, law.TurnFloorSpeed, v.Speed(), 1e-6)
	assert.True(t, v.Alive())
}

func TestStep_LimitBleedsOffGradually(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	law.TurnFloorSpeed = 3
	track := openTrack(t, 1920, 1080, law)
	v := newVehicle(t, spec, Pose{X: 900, Y: 500, Angle: 0})

	for i := 0; i < 120; i++ {
		track.Step(v, 0, 1)
	}
	require.InDelta(t, spec.VMax, v.Speed(), 1e-9)

	prev := v.Speed()
	for i := 0; i < 20; i++ {
		track.Step(v, -1, 1)
		drop := prev - v.Speed()
		require.LessOrEqual(t, drop, law.BrakePerStep+1e-12, "speed never snaps to the limit")
		prev = v.Speed()
	}
	assert.Less(t, v.Speed(), spec.VMax)
}

func TestTurnSpeedLimit(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	track := openTrack(t, 200, 200, law)
	v := newVehicle(t, spec, Pose{X: 50, Y: 50})

	v.steerSmoothed = 0
	assert.InDelta(t, spec.VMax, track.TurnSpeedLimit(v), 1e-12)
	v.steerSmoothed = 1
	assert.InDelta(t, law.TurnFloorSpeed, track.TurnSpeedLimit(v), 1e-12)
	v.steerSmoothed = -1
	assert.InDelta(t, law.TurnFloorSpeed, track.TurnSpeedLimit(v), 1e-12)
	v.steerSmoothed = 0.5
	half := track.TurnSpeedLimit(v)
	assert.Greater(t, half, law.TurnFloorSpeed)
	assert.Less(t, half, spec.VMax)
}

func TestStep_CollisionDeterminism(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	start := Pose{X: 300, Y: 250, Angle: 45}

	open := openTrack(t, 800, 600, law)
	twin := newVehicle(t, spec, start)
	require.True(t, open.Step(twin, 0.3, 1))

	t.Run("corner on border", func(t *testing.T) {
		for i, corner := range twin.Corners() {
			mask, err := NewMask(800, 600)
			require.NoError(t, err)
			p := corner.Pixel()
			mask.Set(p.X, p.Y, true)
			track, err := NewTrack(mask, law)
			require.NoError(t, err)

			v := newVehicle(t, spec, start)
			assert.False(t, track.Step(v, 0.3, 1), "corner %d", i)
			assert.False(t, v.Alive())
		}
	})

	t.Run("border under centre only", func(t *testing.T) {
		mask, err := NewMask(800, 600)
		require.NoError(t, err)
		c := twin.Center().Pixel()
		mask.Set(c.X, c.Y, true)
		track, err := NewTrack(mask, law)
		require.NoError(t, err)

		v := newVehicle(t, spec, start)
		assert.True(t, track.Step(v, 0.3, 1))
		for _, r := range v.Sensors() {
			assert.Equal(t, 0.0, r.Distance, "ray starting on a border pixel")
			assert.Equal(t, c, r.Hit)
		}
	})
}

func TestStep_SensorsExhaustRange(t *testing.T) {
	spec := DefaultVehicleSpec()
	spec.SensorRange = 100
	track := openTrack(t, 1000, 1000, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 470, Y: 470, Angle: 30})

	track.Step(v, 0, 0)
	readings := v.Sensors()
	require.Len(t, readings, len(spec.SensorAngles))
	for i, r := range readings {
		assert.Equal(t, float64(spec.SensorRange), r.Distance, "sensor %d", i)
	}
}

func TestStep_SensorStopsAtWall(t *testing.T) {
	spec := DefaultVehicleSpec()
	mask, err := NewMask(1000, 1000)
	require.NoError(t, err)
	mask.Fill(image.Rect(700, 0, 1000, 1000), true)
	track, err := NewTrack(mask, DefaultControlLaw(60, spec.VMax))
	require.NoError(t, err)

	v := newVehicle(t, spec, Pose{X: 470, Y: 470, Angle: 0})
	require.True(t, track.Step(v, 0, 0))

	forward := v.Sensors()[2] // 0 degrees
	assert.InDelta(t, 700-v.Center().X, forward.Distance, 1)
	assert.Equal(t, 700, forward.Hit.X)
	assert.Equal(t, []float64{8, 4, 3, 4, 8}, v.Observation(60))
}

func TestStep_SensorsRebuiltEveryFrame(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 900, Y: 500})

	assert.Empty(t, v.Sensors())
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, v.Observation(30))
	for i := 0; i < 50; i++ {
		track.Step(v, 0.2, 1)
		require.Len(t, v.Sensors(), len(spec.SensorAngles))
	}
}

func TestReward(t *testing.T) {
	spec := DefaultVehicleSpec()
	spec.Width, spec.Height = 20, 20
	track := openTrack(t, 200, 200, DefaultControlLaw(60, spec.VMax))
	v := newVehicle(t, spec, Pose{X: 50, Y: 50})

	assert.Equal(t, 0.0, track.Reward(v))

	v.distance = 100
	v.frames = 50
	assert.InDelta(t, 0.2, track.Reward(v), 1e-12)

	v.alive = false
	assert.InDelta(t, 0.2, track.Reward(v), 1e-12, "reward uses totals on a dead vehicle")
}

func TestReset_ReproducesFreshTrajectory(t *testing.T) {
	spec := DefaultVehicleSpec()
	track := openTrack(t, 1920, 1080, DefaultControlLaw(60, spec.VMax))
	start := Pose{X: 950, Y: 630, Angle: 180}

	rng := rand.New(rand.NewSource(11))
	cmds := make([][2]float64, 300)
	for i := range cmds {
		if i%3 == 0 {
			continue // zero command
		}
		cmds[i] = [2]float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	}
	run := func(v *Vehicle) []State {
		out := make([]State, 0, len(cmds))
		for _, c := range cmds {
			track.Step(v, c[0], c[1])
			out = append(out, v.State())
		}
		return out
	}

	used := newVehicle(t, spec, start)
	run(used)
	used.Reset()

	assert.Equal(t, 0.0, used.Speed())
	assert.Equal(t, spec.VMax, used.LimitSmoothed())
	assert.Equal(t, 0, used.Frames())
	assert.Empty(t, used.Sensors())
	assert.True(t, used.Alive())

	fresh := newVehicle(t, spec, start)
	if diff := cmp.Diff(fresh.State(), used.State()); diff != "" {
		t.Fatalf("reset state mismatch (-fresh +reset):\n%s", diff)
	}
	if diff := cmp.Diff(run(fresh), run(used)); diff != "" {
		t.Errorf("trajectory mismatch (-fresh +reset):\n%s", diff)
	}
}

func TestDriftModel(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	drift := DriftModel{Friction: 0.2, Gravity: 0.4, Oversteer: 0.3, SpeedLoss: 1.0}

	plainTrack := openTrack(t, 1920, 1080, law)
	driftTrack := openTrack(t, 1920, 1080, law, WithYawHook(drift))
	require.True(t, driftTrack.HasYawHook())

	plain := newVehicle(t, spec, Pose{X: 100, Y: 500})
	drifty := newVehicle(t, spec, Pose{X: 100, Y: 500})
	for i := 0; i < 200; i++ {
		plainTrack.Step(plain, 0, 1)
		driftTrack.Step(drifty, 0, 1)
	}
	require.False(t, drifty.Drifting())
	require.Equal(t, plain.State(), drifty.State())

	plainTrack.Step(plain, 1, 1)
	driftTrack.Step(drifty, 1, 1)
	assert.True(t, drifty.Drifting())
	assert.False(t, plain.Drifting())
	assert.Greater(t, drifty.Angle(), plain.Angle())
	assert.Less(t, drifty.Speed(), plain.Speed())
	assert.GreaterOrEqual(t, drifty.Speed(), spec.VMin)
}

func TestDriftModel_FirstFrameFromRest(t *testing.T) {
	spec := DefaultVehicleSpec()
	law := DefaultControlLaw(60, spec.VMax)
	plainTrack := openTrack(t, 1920, 1080, law)
	driftTrack := openTrack(t, 1920, 1080, law, WithYawHook(DefaultDriftModel()))

	plain := newVehicle(t, spec, Pose{X: 100, Y: 500})
	drifty := newVehicle(t, spec, Pose{X: 100, Y: 500})
	require.Zero(t, drifty.Speed())

	plainTrack.Step(plain, 0, 1)
	driftTrack.Step(drifty, 0, 1)
	assert.False(t, drifty.Drifting())
	assert.Equal(t, plain.Speed(), drifty.Speed())
	assert.Equal(t, plain.Position(), drifty.Position())
}

func TestDriftModel_BelowGripIsUnchanged(t *testing.T) {
	in := Kinematics{Speed: 1, Wheelbase: 50, Delta: 0.1, YawRate: 0.002}
	out, drifting := DefaultDriftModel().AdjustYaw(in)
	assert.False(t, drifting)
	assert.Equal(t, in, out)
}
