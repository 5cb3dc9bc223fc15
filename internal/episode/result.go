package episode

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ukydev/trackevolve/internal/sim"
)

// AgentResult is one agent's outcome.
type AgentResult struct {
	ID       int      `json:"id"`
	Fitness  float64  `json:"fitness"`
	Reward   float64  `json:"reward"`
	Distance float64  `json:"distance"`
	Frames   int      `json:"frames"`
	Alive    bool     `json:"alive"`
	Final    sim.Pose `json:"final"`
}

// Result is the outcome of one episode, agents in ID order.
type Result struct {
	EpisodeID  uuid.UUID     `json:"episode_id"`
	Frames     int           `json:"frames"`
	Reason     StopReason    `json:"reason"`
	Agents     []AgentResult `json:"agents"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func newResult(id uuid.UUID, track *sim.Track, agents []*Agent, frames int, reason StopReason, started, finished time.Time) *Result {
	res := &Result{
		EpisodeID:  id,
		Frames:     frames,
		Reason:     reason,
		Agents:     make([]AgentResult, 0, len(agents)),
		StartedAt:  started,
		FinishedAt: finished,
	}
	for _, a := range agents {
		v := a.Vehicle
		pos := v.Position()
		res.Agents = append(res.Agents, AgentResult{
			ID:       a.ID,
			Fitness:  a.Fitness,
			Reward:   track.Reward(v),
			Distance: v.Distance(),
			Frames:   v.Frames(),
			Alive:    v.Alive(),
			Final:    sim.Pose{X: pos.X, Y: pos.Y, Angle: v.Angle()},
		})
	}
	slices.SortFunc(res.Agents, func(a, b AgentResult) int { return cmp.Compare(a.ID, b.ID) })
	return res
}

// Survivors counts agents still alive at the end.
func (r *Result) Survivors() int {
	n := 0
	for _, a := range r.Agents {
		if a.Alive {
			n++
		}
	}
	return n
}

// Top returns up to n agents by fitness, best first. Ties keep ID order.
// n <= 0 returns all of them.
func (r *Result) Top(n int) []AgentResult {
	out := slices.Clone(r.Agents)
	slices.SortStableFunc(out, func(a, b AgentResult) int {
		return cmp.Compare(b.Fitness, a.Fitness)
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Summary aggregates fitness over an episode.
type Summary struct {
	Agents    int     `json:"agents"`
	Survivors int     `json:"survivors"`
	Best      int     `json:"best"`
	Max       float64 `json:"max"`
	Min       float64 `json:"min"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
}

// Summarize computes fitness statistics. StdDev is the sample standard
// deviation and zero for a single agent.
func Summarize(r *Result) Summary {
	s := Summary{Agents: len(r.Agents), Survivors: r.Survivors(), Best: -1}
	if len(r.Agents) == 0 {
		return s
	}
	fit := make([]float64, len(r.Agents))
	for i, a := range r.Agents {
		fit[i] = a.Fitness
	}
	best := floats.MaxIdx(fit)
	s.Best = r.Agents[best].ID
	s.Max = fit[best]
	s.Min = floats.Min(fit)
	s.Mean = stat.Mean(fit, nil)
	if len(fit) > 1 {
		s.StdDev = stat.StdDev(fit, nil)
	}
	return s
}
