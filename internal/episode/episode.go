// Package episode drives a population of vehicles over one track until
// every vehicle has crashed or the frame budget runs out.
package episode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/trackevolve/internal/controller"
	"github.com/ukydev/trackevolve/internal/sim"
)

// ErrNoAgents is returned when an episode is started without vehicles.
var ErrNoAgents = errors.New("episode has no agents")

// StopReason records why an episode ended.
type StopReason string

const (
	StopAllCrashed  StopReason = "all_crashed"
	StopFrameBudget StopReason = "frame_budget"
)

// Agent pairs a vehicle with the controller that drives it. Fitness is
// the sum of per-frame rewards earned while the vehicle was alive.
type Agent struct {
	ID         int
	Vehicle    *sim.Vehicle
	Controller controller.Controller
	Fitness    float64
}

// Spawn builds one agent per controller, all at the same start pose.
func Spawn(spec sim.VehicleSpec, start sim.Pose, ctrls []controller.Controller) ([]*Agent, error) {
	agents := make([]*Agent, 0, len(ctrls))
	for i, c := range ctrls {
		v, err := sim.NewVehicle(spec, start)
		if err != nil {
			return nil, err
		}
		agents = append(agents, &Agent{ID: i, Vehicle: v, Controller: c})
	}
	return agents, nil
}

// Reset returns the agent to its start pose with zero fitness so it can
// run another episode. Controllers with a Reset method are rewound too.
func (a *Agent) Reset() {
	a.Vehicle.Reset()
	a.Fitness = 0
	if r, ok := a.Controller.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Options control a Runner. Zero values select sequential stepping and
// a 250 s budget at 60 FPS.
type Options struct {
	MaxFrames   int     // frame budget; FPS * seconds
	Denominator float64 // sensor normalisation for controller inputs
	Workers     int     // per-frame parallelism; <= 1 steps sequentially
}

// DefaultOptions is 250 s at 60 FPS with inputs scaled by 60 px.
func DefaultOptions() Options {
	return Options{MaxFrames: 60 * 250, Denominator: 60}
}

// Frame is passed to observers after every vehicle has been stepped.
// Agents includes crashed vehicles; their state is frozen.
type Frame struct {
	EpisodeID uuid.UUID
	Index     int
	Alive     int
	Agents    []*Agent
}

// Observer watches an episode. Calls happen on the Run goroutine between
// frames, so vehicle state may be read but must not be kept.
type Observer interface {
	ObserveFrame(f Frame)
	ObserveResult(r *Result)
}

// AbortObserver is implemented by observers that hold buffered output and
// need to hear about an episode that ends without a Result.
type AbortObserver interface {
	ObserveAbort(id uuid.UUID, frames int, err error)
}

// Runner runs episodes on a fixed track.
type Runner struct {
	track     *sim.Track
	opts      Options
	observers []Observer
}

// NewRunner returns a Runner for track.
func NewRunner(track *sim.Track, opts Options, observers ...Observer) *Runner {
	def := DefaultOptions()
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = def.MaxFrames
	}
	if opts.Denominator <= 0 {
		opts.Denominator = def.Denominator
	}
	return &Runner{track: track, opts: opts, observers: observers}
}

// Track returns the runner's track.
func (r *Runner) Track() *sim.Track { return r.track }

// Options returns the effective options.
func (r *Runner) Options() Options { return r.opts }

// Run steps every live agent once per frame: observe, act, step, and add
// the reward if the agent was alive entering the frame. It stops when no
// agent is alive or after MaxFrames frames. A cancelled context aborts
// between frames.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, agents []*Agent) (*Result, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	for _, a := range agents {
		if a == nil || a.Vehicle == nil || a.Controller == nil {
			return nil, fmt.Errorf("episode %s: agent without vehicle or controller", id)
		}
	}

	logger := log.WithFields(log.Fields{
		"episode_id": id,
		"agents":     len(agents),
		"max_frames": r.opts.MaxFrames,
		"workers":    r.opts.Workers,
	})
	logger.Info("Episode started")
	started := time.Now()

	reason := StopFrameBudget
	frames := 0
	for frames < r.opts.MaxFrames {
		if err := ctx.Err(); err != nil {
			logger.WithError(err).Warn("Episode cancelled")
			r.abort(id, frames, err)
			return nil, fmt.Errorf("episode %s cancelled at frame %d: %w", id, frames, err)
		}

		live := liveAgents(agents)
		if len(live) == 0 {
			reason = StopAllCrashed
			break
		}
		if err := r.stepAll(ctx, live); err != nil {
			r.abort(id, frames, err)
			return nil, fmt.Errorf("episode %s frame %d: %w", id, frames, err)
		}
		frames++

		alive := 0
		for _, a := range live {
			if a.Vehicle.Alive() {
				alive++
				continue
			}
			logger.WithFields(log.Fields{
				"agent":   a.ID,
				"frame":   frames,
				"fitness": a.Fitness,
			}).Debug("Agent crashed")
		}
		for _, o := range r.observers {
			o.ObserveFrame(Frame{EpisodeID: id, Index: frames, Alive: alive, Agents: agents})
		}
		if alive == 0 {
			reason = StopAllCrashed
			break
		}
	}

	res := newResult(id, r.track, agents, frames, reason, started, time.Now())
	for _, o := range r.observers {
		o.ObserveResult(res)
	}
	logger.WithFields(log.Fields{
		"frames":    frames,
		"reason":    reason,
		"survivors": res.Survivors(),
		"duration":  res.FinishedAt.Sub(res.StartedAt).String(),
	}).Info("Episode finished")
	return res, nil
}

func (r *Runner) abort(id uuid.UUID, frames int, err error) {
	for _, o := range r.observers {
		if ab, ok := o.(AbortObserver); ok {
			ab.ObserveAbort(id, frames, err)
		}
	}
}

func (r *Runner) stepAll(ctx context.Context, live []*Agent) error {
	if r.opts.Workers <= 1 {
		for _, a := range live {
			r.stepOne(a)
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, a := range live {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.stepOne(a)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) stepOne(a *Agent) {
	steer, accel := a.Controller.Act(a.Vehicle.Observation(r.opts.Denominator))
	r.track.Step(a.Vehicle, steer, accel)
	a.Fitness += r.track.Reward(a.Vehicle)
}

func liveAgents(agents []*Agent) []*Agent {
	live := make([]*Agent, 0, len(agents))
	for _, a := range agents {
		if a.Vehicle.Alive() {
			live = append(live, a)
		}
	}
	return live
}
