package episode

import (
	"time"

	"github.com/ukydev/trackevolve/internal/models"
)

// Document converts r into its stored form.
func (r *Result) Document(trackName, createdBy string, maxFrames int, drift bool) models.Episode {
	s := Summarize(r)
	doc := models.Episode{
		ID:           r.EpisodeID.String(),
		Track:        trackName,
		CreatedBy:    createdBy,
		Frames:       r.Frames,
		MaxFrames:    maxFrames,
		Reason:       string(r.Reason),
		DriftEnabled: drift,
		Agents:       make([]models.AgentResult, 0, len(r.Agents)),
		Summary: models.EpisodeSummary{
			Agents:    s.Agents,
			Survivors: s.Survivors,
			Best:      s.Best,
			Max:       s.Max,
			Min:       s.Min,
			Mean:      s.Mean,
			StdDev:    s.StdDev,
		},
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  time.Now(),
	}
	for _, a := range r.Agents {
		doc.Agents = append(doc.Agents, models.AgentResult{
			AgentID:    a.ID,
			Fitness:    a.Fitness,
			Reward:     a.Reward,
			Distance:   a.Distance,
			Frames:     a.Frames,
			Alive:      a.Alive,
			FinalPos:   models.Point{X: a.Final.X, Y: a.Final.Y},
			FinalAngle: a.Final.Angle,
		})
	}
	return doc
}
