package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trackevolve/internal/db"
	"github.com/ukydev/trackevolve/internal/episode"
	"github.com/ukydev/trackevolve/internal/models"
)

// Observer is an episode.Observer that publishes every Nth frame and the
// final result, and optionally stores the sampled frames.
type Observer struct {
	pub         Publisher
	prefix      string
	every       int
	denominator float64

	store     db.TelemetryCollection
	batchSize int
	pending   []models.FrameTelemetry

	now      func() time.Time
	failures atomic.Int64
}

// Option configures an Observer.
type Option func(*Observer)

// WithStore persists sampled frames in batches of batchSize.
func WithStore(store db.TelemetryCollection, batchSize int) Option {
	return func(o *Observer) {
		if batchSize <= 0 {
			batchSize = 500
		}
		o.store = store
		o.batchSize = batchSize
	}
}

// WithDenominator sets the scale applied to published sensor distances.
func WithDenominator(d float64) Option {
	return func(o *Observer) { o.denominator = d }
}

// NewObserver samples every frames. pub may be nil to only store.
func NewObserver(pub Publisher, prefix string, every int, opts ...Option) *Observer {
	if every <= 0 {
		every = 1
	}
	o := &Observer{pub: pub, prefix: prefix, every: every, denominator: 1, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FrameTopic is where sampled frames of an episode are published.
func (o *Observer) FrameTopic(id string) string {
	return fmt.Sprintf("%s/episodes/%s/frames", o.prefix, id)
}

// ResultTopic is where the episode summary is published.
func (o *Observer) ResultTopic(id string) string {
	return fmt.Sprintf("%s/episodes/%s/result", o.prefix, id)
}

// Failures counts publish and store errors so far.
func (o *Observer) Failures() int64 { return o.failures.Load() }

// ObserveFrame implements episode.Observer. Vehicles that crashed in
// this frame are always sampled.
func (o *Observer) ObserveFrame(f episode.Frame) {
	sampled := f.Index%o.every == 0
	id := f.EpisodeID.String()
	ts := o.now()

	var batch []models.FrameTelemetry
	for _, a := range f.Agents {
		v := a.Vehicle
		justCrashed := !v.Alive() && v.Frames() == f.Index
		if !(sampled && v.Alive()) && !justCrashed {
			continue
		}
		pos, center := v.Position(), v.Center()
		batch = append(batch, models.FrameTelemetry{
			EpisodeID:     id,
			AgentID:       a.ID,
			Frame:         f.Index,
			Position:      models.Point{X: pos.X, Y: pos.Y},
			Center:        models.Point{X: center.X, Y: center.Y},
			Angle:         v.Angle(),
			Speed:         v.Speed(),
			SteerSmoothed: v.SteerSmoothed(),
			LimitSmoothed: v.LimitSmoothed(),
			Sensors:       v.Observation(o.denominator),
			Alive:         v.Alive(),
			Drifting:      v.Drifting(),
			Timestamp:     ts,
		})
	}
	if len(batch) == 0 {
		return
	}

	if o.pub != nil {
		o.publish(o.FrameTopic(id), batch)
	}
	if o.store != nil {
		o.pending = append(o.pending, batch...)
		if len(o.pending) >= o.batchSize {
			o.flush()
		}
	}
}

// ObserveResult implements episode.Observer.
func (o *Observer) ObserveResult(r *episode.Result) {
	if o.store != nil {
		o.flush()
	}
	if o.pub == nil {
		return
	}
	o.publish(o.ResultTopic(r.EpisodeID.String()), struct {
		EpisodeID string                `json:"episode_id"`
		Frames    int                   `json:"frames"`
		Reason    episode.StopReason    `json:"reason"`
		Summary   episode.Summary       `json:"summary"`
		Top       []episode.AgentResult `json:"top"`
	}{
		EpisodeID: r.EpisodeID.String(),
		Frames:    r.Frames,
		Reason:    r.Reason,
		Summary:   episode.Summarize(r),
		Top:       r.Top(10),
	})
}

// ObserveAbort implements episode.AbortObserver. Frames sampled before
// the abort are stored; no result is published.
func (o *Observer) ObserveAbort(id uuid.UUID, frames int, err error) {
	if o.store == nil {
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"episode_id": id.String(),
		"frame":      frames,
		"pending":    len(o.pending),
	}).Info("Flushing telemetry for aborted episode")
	o.flush()
}

func (o *Observer) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = o.pub.Publish(topic, payload)
	}
	if err != nil {
		o.failures.Add(1)
		log.WithError(err).WithField("topic", topic).Warn("Failed to publish telemetry")
	}
}

func (o *Observer) flush() {
	if len(o.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.InsertFrames(ctx, o.pending); err != nil {
		o.failures.Add(1)
		log.WithError(err).WithField("frames", len(o.pending)).Warn("Failed to store telemetry")
	}
	o.pending = nil
}
