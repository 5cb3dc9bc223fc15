package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/trackevolve/internal/models"
)

func TestConnectMongo_BadURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNilCollections(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()

	episodes := &MongoEpisodeCollection{}
	assert.ErrorIs(t, episodes.InsertEpisode(ctx, models.Episode{ID: id}), ErrNilCollection)
	_, err := episodes.FindEpisodes(ctx, 10)
	assert.ErrorIs(t, err, ErrNilCollection)
	_, err = episodes.FindEpisodeByID(ctx, id)
	assert.ErrorIs(t, err, ErrNilCollection)
	assert.ErrorIs(t, episodes.DeleteEpisode(ctx, id), ErrNilCollection)

	frames := &MongoTelemetryCollection{}
	assert.ErrorIs(t, frames.InsertFrames(ctx, []models.FrameTelemetry{{}}), ErrNilCollection)
	_, err = frames.FindFrames(ctx, id, 0)
	assert.ErrorIs(t, err, ErrNilCollection)
	_, err = frames.DeleteEpisodeFrames(ctx, id)
	assert.ErrorIs(t, err, ErrNilCollection)

	users := &MongoUserCollection{}
	assert.ErrorIs(t, users.InsertUser(ctx, models.User{}), ErrNilCollection)
	_, err = users.FindUserByUsername(ctx, "ana")
	assert.ErrorIs(t, err, ErrNilCollection)
}

func TestEpisodeCollection_RejectsBadIDs(t *testing.T) {
	// A non-nil collection handle without a live server; validation fails first.
	coll := &MongoEpisodeCollection{Collection: &mongo.Collection{}}
	ctx := context.Background()

	assert.Error(t, coll.InsertEpisode(ctx, models.Episode{ID: "not-a-uuid"}))
	_, err := coll.FindEpisodeByID(ctx, "42")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, coll.DeleteEpisode(ctx, ""))
}

func integrationDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("test_trackevolve")
	require.NoError(t, db.Drop(context.Background()))
	require.NoError(t, EnsureIndexes(context.Background(), db))
	return db
}

func TestEpisodeCollection_Integration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	coll := &MongoEpisodeCollection{Collection: db.Collection(EpisodesCollectionName)}

	older := models.Episode{ID: uuid.NewString(), Track: "k1.png", CreatedAt: time.Now().Add(-time.Minute),
		Agents: []models.AgentResult{{AgentID: 0, Fitness: 12.5}}}
	newer := models.Episode{ID: uuid.NewString(), Track: "k2.png"}
	require.NoError(t, coll.InsertEpisode(ctx, older))
	require.NoError(t, coll.InsertEpisode(ctx, newer))

	list, err := coll.FindEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Empty(t, list[1].Agents, "list omits per-agent results")

	got, err := coll.FindEpisodeByID(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, got.Agents, 1)
	assert.Equal(t, 12.5, got.Agents[0].Fitness)

	require.NoError(t, coll.DeleteEpisode(ctx, older.ID))
	_, err = coll.FindEpisodeByID(ctx, older.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, coll.DeleteEpisode(ctx, older.ID), ErrNotFound)
}

func TestTelemetryCollection_Integration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	coll := &MongoTelemetryCollection{Collection: db.Collection(TelemetryCollectionName)}
	id := uuid.NewString()

	batch := []models.FrameTelemetry{
		{EpisodeID: id, AgentID: 1, Frame: 20, Speed: 3},
		{EpisodeID: id, AgentID: 1, Frame: 10, Speed: 2},
		{EpisodeID: id, AgentID: 2, Frame: 10},
	}
	require.NoError(t, coll.InsertFrames(ctx, batch))
	require.NoError(t, coll.InsertFrames(ctx, nil))

	frames, err := coll.FindFrames(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 10, frames[0].Frame)
	assert.Equal(t, 20, frames[1].Frame)

	n, err := coll.DeleteEpisodeFrames(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
