package repository

import (
	"context"
	"fmt"

	"wavely/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// OpenWaveStore returns the wave repository cfg selects. The mongo client is
// nil on the relational store; callers disconnect it on shutdown.
func OpenWaveStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (WaveRepository, *mongo.Client, error) {
	if cfg.WaveStore != config.StoreMongo {
		return NewWaveRepository(db), nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
	}
	mdb := client.Database(cfg.MongoDB)
	if err := EnsureMongoIndexes(ctx, mdb); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return NewMongoWaveRepository(mdb), client, nil
}

// DropMongoWaves removes every wave document and resets the id counter.
func DropMongoWaves(ctx context.Context, client *mongo.Client, database string) error {
	mdb := client.Database(database)
	if err := mdb.Collection(wavesCollection).Drop(ctx); err != nil {
		return err
	}
	if err := mdb.Collection(countersCollection).Drop(ctx); err != nil {
		return err
	}
	return EnsureMongoIndexes(ctx, mdb)
}
