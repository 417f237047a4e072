package repository

import (
	"context"
	"errors"
	"time"

	"wavely/internal/models"
	"wavely/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	wavesCollection    = "waves"
	countersCollection = "counters"
)

type mongoWaveRepository struct {
	waves    *mongo.Collection
	counters *mongo.Collection
	log      *observability.RepoLogger
}

// NewMongoWaveRepository creates a wave repository on a MongoDB database.
func NewMongoWaveRepository(db *mongo.Database) WaveRepository {
	return &mongoWaveRepository{
		waves:    db.Collection(wavesCollection),
		counters: db.Collection(countersCollection),
		log:      observability.NewRepoLogger(wavesCollection),
	}
}

// EnsureMongoIndexes creates the feed and author indexes.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(wavesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "wave_type", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// nextID allocates a numeric id from the counters collection.
func (r *mongoWaveRepository) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": wavesCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return uint(counter.Seq), nil
}

func (r *mongoWaveRepository) Create(ctx context.Context, wave *models.Wave) error {
	ctx, span := observability.TraceStoreOperation(ctx, "mongodb", "insert", wavesCollection)
	defer span.End()

	id, err := r.nextID(ctx)
	if err != nil {
		r.log.Failed(ctx, "create", err)
		return err
	}
	now := time.Now().UTC()
	wave.ID = id
	wave.Version = 1
	if wave.CreatedAt.IsZero() {
		wave.CreatedAt = now
	}
	wave.UpdatedAt = now
	if wave.LikedBy == nil {
		wave.LikedBy = []uint{}
	}
	if wave.CommentsList == nil {
		wave.CommentsList = []models.Comment{}
	}
	if wave.CommunityRatings == nil {
		wave.CommunityRatings = []models.RatingEntry{}
	}

	if _, err := r.waves.InsertOne(ctx, wave); err != nil {
		r.log.Failed(ctx, "create", err)
		return err
	}
	r.log.Wrote(ctx, "create", "wave_id", wave.ID, "user_id", wave.UserID)
	return nil
}

func (r *mongoWaveRepository) GetByID(ctx context.Context, id uint) (*models.Wave, error) {
	ctx, span := observability.TraceStoreOperation(ctx, "mongodb", "find_one", wavesCollection)
	defer span.End()

	var wave models.Wave
	if err := r.waves.FindOne(ctx, bson.M{"_id": id}).Decode(&wave); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("Wave", id)
		}
		return nil, err
	}
	return &wave, nil
}

func (r *mongoWaveRepository) List(ctx context.Context, q models.FeedQuery) ([]*models.Wave, error) {
	ctx, span := observability.TraceStoreOperation(ctx, "mongodb", "find", wavesCollection)
	defer span.End()
	limit, offset := clampPage(q.Limit, q.Offset)

	filter := bson.M{}
	if q.WaveType != "" {
		filter["wave_type"] = q.WaveType
	}
	if q.UserID != 0 {
		filter["user_id"] = q.UserID
	}
	if q.AuthorIDs != nil {
		filter["user_id"] = bson.M{"$in": q.AuthorIDs}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := r.waves.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	waves := []*models.Wave{}
	if err := cur.All(ctx, &waves); err != nil {
		return nil, err
	}
	return waves, nil
}

func (r *mongoWaveRepository) ListIDs(ctx context.Context) ([]uint, error) {
	cur, err := r.waves.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID uint `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]uint, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (r *mongoWaveRepository) ReplaceDocument(ctx context.Context, wave *models.Wave, expectedVersion int64) error {
	ctx, span := observability.TraceStoreOperation(ctx, "mongodb", "update_one", wavesCollection)
	defer span.End()

	now := time.Now().UTC()
	set := bson.M{
		"title":             wave.Title,
		"content":           wave.Content,
		"media_urls":        wave.MediaURLs,
		"media_type":        wave.MediaType,
		"rating":            wave.Rating,
		"comments":          wave.Comments,
		"comments_list":     wave.CommentsList,
		"community_ratings": wave.CommunityRatings,
		"average_rating":    wave.AverageRating,
		"anime":             wave.Anime,
		"version":           expectedVersion + 1,
		"updated_at":        now,
	}

	res, err := r.waves.UpdateOne(ctx,
		bson.M{"_id": wave.ID, "version": expectedVersion},
		bson.M{"$set": set},
	)
	if err != nil {
		r.log.Failed(ctx, "replace", err)
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	wave.Version = expectedVersion + 1
	wave.UpdatedAt = now
	r.log.Wrote(ctx, "replace", "wave_id", wave.ID, "version", wave.Version)
	return nil
}

// ToggleLike adds userID with $addToSet when absent, otherwise pulls it.
// Each branch is a single atomic document update.
func (r *mongoWaveRepository) ToggleLike(ctx context.Context, waveID, userID uint) (bool, int, error) {
	ctx, span := observability.TraceStoreOperation(ctx, "mongodb", "toggle_like", wavesCollection)
	defer span.End()

	after := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes": 1})

	var doc struct {
		Likes int `bson:"likes"`
	}
	err := r.waves.FindOneAndUpdate(ctx,
		bson.M{"_id": waveID, "liked_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"liked_by": userID}, "$inc": bson.M{"likes": 1}},
		after,
	).Decode(&doc)
	if err == nil {
		return true, doc.Likes, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, 0, err
	}

	err = r.waves.FindOneAndUpdate(ctx,
		bson.M{"_id": waveID, "liked_by": userID},
		bson.M{"$pull": bson.M{"liked_by": userID}, "$inc": bson.M{"likes": -1}},
		after,
	).Decode(&doc)
	if err == nil {
		return false, doc.Likes, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, 0, models.NewNotFoundError("Wave", waveID)
	}
	return false, 0, err
}

func (r *mongoWaveRepository) Delete(ctx context.Context, id uint) error {
	res, err := r.waves.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.log.Failed(ctx, "delete", err)
		return err
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("Wave", id)
	}
	r.log.Wrote(ctx, "delete", "wave_id", id)
	return nil
}
