package episode

import (
	"context"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trackevolve/internal/controller"
	"github.com/ukydev/trackevolve/internal/sim"
)

func newTrack(t *testing.T, w, h int, walls ...image.Rectangle) *sim.Track {
	t.Helper()
	mask, err := sim.NewMask(w, h)
	require.NoError(t, err)
	for _, r := range walls {
		mask.Fill(r, true)
	}
	track, err := sim.NewTrack(mask, sim.DefaultControlLaw(60, 4.5))
	require.NoError(t, err)
	return track
}

func spawn(t *testing.T, start sim.Pose, ctrls ...controller.Controller) []*Agent {
	t.Helper()
	agents, err := Spawn(sim.DefaultVehicleSpec(), start, ctrls)
	require.NoError(t, err)
	return agents
}

// wallFollower steers away from whichever side reads closer.
func wallFollower(gain float64) controller.Controller {
	return controller.Func(func(in []float64) (float64, float64) {
		return gain * (in[0] - in[4]), 1 - 0.1*gain
	})
}

type recorder struct {
	frames []Frame
	alive  []int
	result *Result
}

func (r *recorder) ObserveFrame(f Frame) {
	r.frames = append(r.frames, f)
	r.alive = append(r.alive, f.Alive)
}

func (r *recorder) ObserveResult(res *Result) { r.result = res }

func TestRun_NoAgents(t *testing.T) {
	runner := NewRunner(newTrack(t, 200, 200), Options{})
	_, err := runner.Run(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNoAgents)
}

func TestRun_RejectsIncompleteAgent(t *testing.T) {
	runner := NewRunner(newTrack(t, 200, 200), Options{})
	_, err := runner.Run(context.Background(), uuid.New(), []*Agent{{ID: 1}})
	assert.Error(t, err)
}

func TestNewRunner_Defaults(t *testing.T) {
	runner := NewRunner(newTrack(t, 200, 200), Options{Workers: 3})
	assert.Equal(t, Options{MaxFrames: 15000, Denominator: 60, Workers: 3}, runner.Options())
}

func TestRun_FrameBudget(t *testing.T) {
	track := newTrack(t, 1920, 1080)
	agents := spawn(t, sim.Pose{X: 100, Y: 500}, controller.Constant{Accel: 1}, controller.Constant{Accel: -1})
	rec := &recorder{}
	runner := NewRunner(track, Options{MaxFrames: 50, Denominator: 60}, rec)

	id := uuid.New()
	res, err := runner.Run(context.Background(), id, agents)
	require.NoError(t, err)

	assert.Equal(t, id, res.EpisodeID)
	assert.Equal(t, 50, res.Frames)
	assert.Equal(t, StopFrameBudget, res.Reason)
	assert.Equal(t, 2, res.Survivors())
	for _, a := range res.Agents {
		assert.Equal(t, 50, a.Frames)
		assert.True(t, a.Alive)
	}
	assert.Greater(t, res.Agents[0].Distance, res.Agents[1].Distance)

	require.Len(t, rec.frames, 50)
	assert.Equal(t, 1, rec.frames[0].Index)
	assert.Equal(t, 50, rec.frames[49].Index)
	assert.Same(t, res, rec.result)
}

func TestRun_FitnessIsSumOfRewards(t *testing.T) {
	track := newTrack(t, 1920, 1080)
	start := sim.Pose{X: 100, Y: 500}
	agents := spawn(t, start, controller.Constant{Steer: 0.2, Accel: 0.5})

	twin, err := sim.NewVehicle(sim.DefaultVehicleSpec(), start)
	require.NoError(t, err)
	want := 0.0
	for i := 0; i < 120; i++ {
		track.Step(twin, 0.2, 0.5)
		want += track.Reward(twin)
	}

	res, err := NewRunner(track, Options{MaxFrames: 120}).Run(context.Background(), uuid.New(), agents)
	require.NoError(t, err)
	assert.InDelta(t, want, res.Agents[0].Fitness, 1e-9)
	assert.InDelta(t, track.Reward(twin), res.Agents[0].Reward, 1e-12)
}

func TestRun_StopsWhenAllCrashed(t *testing.T) {
	track := newTrack(t, 400, 400, image.Rect(300, 0, 400, 400))
	agents := spawn(t, sim.Pose{X: 100, Y: 170}, controller.Constant{Accel: 1}, controller.Constant{Accel: 1})
	rec := &recorder{}

	res, err := NewRunner(track, Options{MaxFrames: 10000}, rec).Run(context.Background(), uuid.New(), agents)
	require.NoError(t, err)

	assert.Equal(t, StopAllCrashed, res.Reason)
	assert.Less(t, res.Frames, 10000)
	assert.Zero(t, res.Survivors())
	for _, a := range res.Agents {
		assert.False(t, a.Alive)
		assert.Equal(t, res.Frames, a.Frames, "crash frame is the last stepped frame")
		assert.Greater(t, a.Fitness, 0.0)
	}
	require.NotEmpty(t, rec.alive)
	assert.Equal(t, 0, rec.alive[len(rec.alive)-1])
}

func TestRun_CrashedAgentsFreeze(t *testing.T) {
	track := newTrack(t, 1000, 400, image.Rect(300, 0, 1000, 200))
	agents := spawn(t, sim.Pose{X: 100, Y: 100}, controller.Constant{Accel: 1})
	agents = append(agents, spawn(t, sim.Pose{X: 100, Y: 300}, controller.Constant{Accel: 1})...)
	agents[1].ID = 1

	res, err := NewRunner(track, Options{MaxFrames: 200}).Run(context.Background(), uuid.New(), agents)
	require.NoError(t, err)

	assert.Equal(t, StopFrameBudget, res.Reason)
	assert.False(t, res.Agents[0].Alive)
	assert.True(t, res.Agents[1].Alive)
	assert.Less(t, res.Agents[0].Frames, 200)
	assert.Equal(t, 200, res.Agents[1].Frames)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	track := newTrack(t, 800, 600, image.Rect(0, 0, 800, 40), image.Rect(0, 560, 800, 600))
	start := sim.Pose{X: 370, Y: 270, Angle: 30}
	gains := []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 3}

	run := func(workers int) *Result {
		ctrls := make([]controller.Controller, len(gains))
		for i, g := range gains {
			ctrls[i] = wallFollower(g)
		}
		res, err := NewRunner(track, Options{MaxFrames: 600, Workers: workers}).
			Run(context.Background(), uuid.Nil, spawn(t, start, ctrls...))
		require.NoError(t, err)
		return res
	}

	seq, par := run(0), run(4)
	opts := cmpopts.IgnoreFields(Result{}, "StartedAt", "FinishedAt")
	if diff := cmp.Diff(seq, par, opts); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agents := spawn(t, sim.Pose{X: 100, Y: 100}, controller.Constant{})
	_, err := NewRunner(newTrack(t, 400, 400), Options{}).Run(ctx, uuid.New(), agents)
	assert.ErrorIs(t, err, context.Canceled)
}

type cancelAfter struct {
	recorder
	n        int
	cancel   context.CancelFunc
	abortErr error
	abortAt  int
}

func (c *cancelAfter) ObserveFrame(f Frame) {
	c.recorder.ObserveFrame(f)
	if len(c.frames) == c.n {
		c.cancel()
	}
}

func (c *cancelAfter) ObserveAbort(_ uuid.UUID, frames int, err error) {
	c.abortAt = frames
	c.abortErr = err
}

func TestRun_CancelledMidEpisodeNotifiesAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &cancelAfter{n: 5, cancel: cancel}
	plain := &recorder{}

	agents := spawn(t, sim.Pose{X: 100, Y: 200}, controller.Constant{Accel: 0.5})
	_, err := NewRunner(newTrack(t, 400, 400), Options{}, obs, plain).Run(ctx, uuid.New(), agents)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, obs.frames, 5)
	assert.Equal(t, 5, obs.abortAt)
	assert.ErrorIs(t, obs.abortErr, context.Canceled)
	assert.Nil(t, obs.result)
	assert.Len(t, plain.frames, 5, "observers without abort support still see every frame")
}

func TestAgent_ResetReplaysEpisode(t *testing.T) {
	track := newTrack(t, 1920, 1080)
	slew := controller.NewSlew(2, 60,
		controller.Segment{Frames: 30, Steer: 1, Accel: 1},
		controller.Segment{Frames: 30, Steer: -1, Accel: 0.5},
	)
	agents := spawn(t, sim.Pose{X: 400, Y: 500, Angle: 30}, slew)
	runner := NewRunner(track, Options{MaxFrames: 90})

	first, err := runner.Run(context.Background(), uuid.New(), agents)
	require.NoError(t, err)

	agents[0].Reset()
	assert.Zero(t, agents[0].Fitness)
	assert.Zero(t, agents[0].Vehicle.Frames())
	assert.Equal(t, sim.Point{X: 400, Y: 500}, agents[0].Vehicle.Position())

	second, err := runner.Run(context.Background(), uuid.New(), agents)
	require.NoError(t, err)
	if diff := cmp.Diff(first.Agents, second.Agents); diff != "" {
		t.Errorf("replay differs (-first +second):\n%s", diff)
	}
}
