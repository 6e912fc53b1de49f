package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shaiso/Relay/internal/domain"
)

// JobStore — хранилище определений заданий.
type JobStore struct {
	coll *mongo.Collection
}

// NewJobStore создаёт хранилище заданий.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{coll: db.Collection(collJobs)}
}

// Load загружает определение задания по ID.
func (s *JobStore) Load(ctx context.Context, jobID uuid.UUID) (*domain.JobDefinition, error) {
	var job domain.JobDefinition
	err := s.coll.FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return &job, nil
}

// Save сохраняет определение задания (upsert по _id).
func (s *JobStore) Save(ctx context.Context, job *domain.JobDefinition) error {
	if err := job.Validate(); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": job.ID},
		job,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// List возвращает все определения заданий.
func (s *JobStore) List(ctx context.Context) ([]domain.JobDefinition, error) {
	cur, err := s.coll.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer cur.Close(ctx)

	var jobs []domain.JobDefinition
	if err := cur.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

// ListScheduled возвращает активные задания с расписанием.
func (s *JobStore) ListScheduled(ctx context.Context) ([]domain.JobDefinition, error) {
	cur, err := s.coll.Find(ctx, bson.M{
		"is_active": true,
		"schedule":  bson.M{"$ne": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer cur.Close(ctx)

	var jobs []domain.JobDefinition
	if err := cur.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode scheduled jobs: %w", err)
	}
	return jobs, nil
}

// Delete удаляет определение задания.
func (s *JobStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": jobID})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return nil
}
