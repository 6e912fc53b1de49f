package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Имена коллекций.
const (
	collJobs = "jobs"
	collRuns = "runs"
)

// DB — подключение к хранилищу документов.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &DB{
		client: client,
		db:     client.Database(database),
	}, nil
}

// EnsureIndexes создаёт индексы коллекций.
//
// runs: (job_id, idempotency_key) для дедупликации scheduled runs,
// (status, updated_at) для ListStale и фильтров по статусу.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	runs := d.db.Collection(collRuns)

	_, err := runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetPartialFilterExpression(bson.D{{Key: "idempotency_key", Value: bson.D{{Key: "$exists", Value: true}}}}).
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create run indexes: %w", err)
	}

	return nil
}

// Close закрывает подключение.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Collection возвращает коллекцию по имени.
func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}
