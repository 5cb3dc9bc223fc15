package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/trackevolve/internal/models"
)

// MaxEpisodeList caps FindEpisodes.
const MaxEpisodeList = 500

// MongoEpisodeCollection implements EpisodeCollection for MongoDB.
type MongoEpisodeCollection struct {
	Collection *mongo.Collection
}

// InsertEpisode stores a finished episode.
func (c *MongoEpisodeCollection) InsertEpisode(ctx context.Context, episode models.Episode) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if _, err := uuid.Parse(episode.ID); err != nil {
		return fmt.Errorf("invalid episode ID %q: %w", episode.ID, err)
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now()
	}
	_, err := c.Collection.InsertOne(ctx, episode)
	return err
}

// FindEpisodes returns up to limit episodes, newest first.
func (c *MongoEpisodeCollection) FindEpisodes(ctx context.Context, limit int) ([]models.Episode, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	if limit <= 0 || limit > MaxEpisodeList {
		limit = MaxEpisodeList
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"agents": 0})
	cursor, err := c.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	episodes := []models.Episode{}
	if err := cursor.All(ctx, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

// FindEpisodeByID finds an episode by its UUID.
func (c *MongoEpisodeCollection) FindEpisodeByID(ctx context.Context, id string) (*models.Episode, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid episode ID: %w", err)
	}
	var episode models.Episode
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&episode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &episode, nil
}

// DeleteEpisode removes an episode by its UUID.
func (c *MongoEpisodeCollection) DeleteEpisode(ctx context.Context, id string) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid episode ID: %w", err)
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	return nil
}
