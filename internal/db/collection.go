package db

import (
	"context"

	"github.com/ukydev/trackevolve/internal/models"
)

// EpisodeCollection defines the interface for episode operations.
type EpisodeCollection interface {
	InsertEpisode(ctx context.Context, episode models.Episode) error
	FindEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
	FindEpisodeByID(ctx context.Context, id string) (*models.Episode, error)
	DeleteEpisode(ctx context.Context, id string) error
}

// TelemetryCollection defines the interface for frame telemetry operations.
type TelemetryCollection interface {
	InsertFrames(ctx context.Context, frames []models.FrameTelemetry) error
	FindFrames(ctx context.Context, episodeID string, agentID int) ([]models.FrameTelemetry, error)
	DeleteEpisodeFrames(ctx context.Context, episodeID string) (int64, error)
}
