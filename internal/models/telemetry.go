package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FrameTelemetry is one vehicle's state after one frame.
type FrameTelemetry struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	EpisodeID     string             `bson:"episode_id" json:"episode_id"`
	AgentID       int                `bson:"agent_id" json:"agent_id"`
	Frame         int                `bson:"frame" json:"frame"`
	Position      Point              `bson:"position" json:"position"`
	Center        Point              `bson:"center" json:"center"`
	Angle         float64            `bson:"angle" json:"angle"`
	Speed         float64            `bson:"speed" json:"speed"`
	SteerSmoothed float64            `bson:"steer_smoothed" json:"steer_smoothed"`
	LimitSmoothed float64            `bson:"limit_smoothed" json:"limit_smoothed"`
	Sensors       []float64          `bson:"sensors" json:"sensors"`
	Alive         bool               `bson:"alive" json:"alive"`
	Drifting      bool               `bson:"drifting,omitempty" json:"drifting,omitempty"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
}
