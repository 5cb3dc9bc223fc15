package models

import (
	"time"
)

// Episode is a stored simulation run. ID is the episode UUID.
type Episode struct {
	ID           string         `bson:"_id" json:"id"`
	Track        string         `bson:"track" json:"track"`
	CreatedBy    string         `bson:"created_by" json:"created_by"`
	Frames       int            `bson:"frames" json:"frames"`
	MaxFrames    int            `bson:"max_frames" json:"max_frames"`
	Reason       string         `bson:"reason" json:"reason"` // "all_crashed" or "frame_budget"
	DriftEnabled bool           `bson:"drift_enabled" json:"drift_enabled"`
	Agents       []AgentResult  `bson:"agents" json:"agents"`
	Summary      EpisodeSummary `bson:"summary" json:"summary"`
	StartedAt    time.Time      `bson:"started_at" json:"started_at"`
	FinishedAt   time.Time      `bson:"finished_at" json:"finished_at"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
}

// EpisodeSummary aggregates agent fitness.
type EpisodeSummary struct {
	Agents    int     `bson:"agents" json:"agents"`
	Survivors int     `bson:"survivors" json:"survivors"`
	Best      int     `bson:"best" json:"best"`
	Max       float64 `bson:"max" json:"max"`
	Min       float64 `bson:"min" json:"min"`
	Mean      float64 `bson:"mean" json:"mean"`
	StdDev    float64 `bson:"std_dev" json:"std_dev"`
}

// AgentResult is one vehicle's outcome within an episode.
type AgentResult struct {
	AgentID    int     `bson:"agent_id" json:"agent_id"`
	Fitness    float64 `bson:"fitness" json:"fitness"`
	Reward     float64 `bson:"reward" json:"reward"`
	Distance   float64 `bson:"distance" json:"distance"` // pixels
	Frames     int     `bson:"frames" json:"frames"`
	Alive      bool    `bson:"alive" json:"alive"`
	FinalPos   Point   `bson:"final_position" json:"final_position"`
	FinalAngle float64 `bson:"final_angle" json:"final_angle"` // degrees
}

// RunEpisodeRequest is the body of POST /api/episodes. Networks holds
// one raw feed-forward network per agent.
type RunEpisodeRequest struct {
	Networks  []RawNetwork `json:"networks"`
	MaxFrames int          `json:"max_frames,omitempty"`
	Start     *Pose        `json:"start,omitempty"`
}

// RawNetwork mirrors controller.FeedForward on the wire.
type RawNetwork struct {
	Layers []RawLayer `json:"layers"`
}

// RawLayer is one dense layer.
type RawLayer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// Pose is a start position and heading.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}
