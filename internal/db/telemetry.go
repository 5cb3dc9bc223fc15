package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/trackevolve/internal/models"
)

// MongoTelemetryCollection implements TelemetryCollection for MongoDB.
type MongoTelemetryCollection struct {
	Collection *mongo.Collection
}

// InsertFrames writes a batch of frame samples. Order within the batch
// does not matter.
func (c *MongoTelemetryCollection) InsertFrames(ctx context.Context, frames []models.FrameTelemetry) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if len(frames) == 0 {
		return nil
	}
	docs := make([]interface{}, len(frames))
	for i := range frames {
		docs[i] = frames[i]
	}
	_, err := c.Collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// FindFrames returns one agent's samples in frame order.
func (c *MongoTelemetryCollection) FindFrames(ctx context.Context, episodeID string, agentID int) ([]models.FrameTelemetry, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	cursor, err := c.Collection.Find(ctx,
		bson.M{"episode_id": episodeID, "agent_id": agentID},
		options.Find().SetSort(bson.D{{Key: "frame", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	frames := []models.FrameTelemetry{}
	if err := cursor.All(ctx, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

// DeleteEpisodeFrames removes every sample of an episode.
func (c *MongoTelemetryCollection) DeleteEpisodeFrames(ctx context.Context, episodeID string) (int64, error) {
	if c.Collection == nil {
		return 0, ErrNilCollection
	}
	result, err := c.Collection.DeleteMany(ctx, bson.M{"episode_id": episodeID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
