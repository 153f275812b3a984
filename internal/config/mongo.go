package config

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/assetverse-server/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// SetupMongo connects to the document store and creates the indexes the
// workflows depend on. The deployment must be a replica set for transactions.
func SetupMongo(ctx context.Context, cfg *Config, logger *zap.Logger) (*repository.MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetRegistry(repository.NewMongoRegistry())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	repo := repository.NewMongoRepository(client, cfg.Mongo.Database)
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
	}

	logger.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))
	return repo, nil
}
