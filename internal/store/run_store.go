package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shaiso/Relay/internal/domain"
)

// RunStore — хранилище запусков. Исходы шагов хранятся встроенным
// массивом внутри документа запуска и только дописываются.
type RunStore struct {
	coll *mongo.Collection
}

// NewRunStore создаёт хранилище запусков.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{coll: db.Collection(collRuns)}
}

// Create сохраняет новый запуск.
func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	_, err := s.coll.InsertOne(ctx, run)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: run %s", ErrConflict, run.ID)
	}
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// Get загружает запуск по ID.
func (s *RunStore) Get(ctx context.Context, runID uuid.UUID) (*domain.Run, error) {
	var run domain.Run
	err := s.coll.FindOne(ctx, bson.M{"_id": runID}).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

// GetByIdempotencyKey ищет запуск задания по ключу идемпотентности.
func (s *RunStore) GetByIdempotencyKey(ctx context.Context, jobID uuid.UUID, key string) (*domain.Run, error) {
	var run domain.Run
	err := s.coll.FindOne(ctx, bson.M{"job_id": jobID, "idempotency_key": key}).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: run with key %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get run by key %q: %w", key, err)
	}
	return &run, nil
}

// MarkRunning переводит запуск PENDING -> RUNNING. Возвращает ErrConflict,
// если запуск уже не в PENDING (например, отменён до старта).
func (s *RunStore) MarkRunning(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": runID, "status": domain.RunStatusPending},
		bson.M{"$set": bson.M{
			"status":     domain.RunStatusRunning,
			"started_at": startedAt,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("mark run %s running: %w", runID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: run %s is not pending", ErrConflict, runID)
	}
	return nil
}

// AppendStepOutcome дописывает исход шага. Идемпотентна: повтор с тем же
// step_id не создаёт дубликата, фильтр $ne отсекает уже записанный шаг.
func (s *RunStore) AppendStepOutcome(ctx context.Context, runID uuid.UUID, outcome domain.StepOutcome) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{
			"_id":              runID,
			"outcomes.step_id": bson.M{"$ne": outcome.StepID},
		},
		bson.M{
			"$push": bson.M{"outcomes": outcome},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("append outcome %s to run %s: %w", outcome.StepID, runID, err)
	}
	return nil
}

// Finalize переводит запуск в терминальный статус. Фильтр по статусу
// гарантирует монотонность: терминальный запуск изменить нельзя.
func (s *RunStore) Finalize(ctx context.Context, runID uuid.UUID, status domain.RunStatus, errMsg string, finalContext map[string]any) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize run %s: status %s is not terminal", runID, status)
	}

	now := time.Now().UTC()
	set := bson.M{
		"status":      status,
		"finished_at": now,
		"updated_at":  now,
	}
	if errMsg != "" {
		set["error"] = errMsg
	}
	if finalContext != nil {
		set["final_context"] = finalContext
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			"_id":    runID,
			"status": bson.M{"$in": []domain.RunStatus{domain.RunStatusPending, domain.RunStatusRunning}},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: run %s already finalized", ErrConflict, runID)
	}
	return nil
}

// ListFilter — параметры выборки запусков.
type ListFilter struct {
	JobID  *uuid.UUID
	Status domain.RunStatus
	Limit  int64
	Offset int64
}

// List возвращает запуски по фильтру, новые первыми.
func (s *RunStore) List(ctx context.Context, filter ListFilter) ([]domain.Run, error) {
	query := bson.M{}
	if filter.JobID != nil {
		query["job_id"] = *filter.JobID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer cur.Close(ctx)

	var runs []domain.Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return runs, nil
}

// ListStale возвращает запуски, застрявшие в RUNNING дольше порога.
// Используется при старте для восстановления после падения процесса.
func (s *RunStore) ListStale(ctx context.Context, olderThan time.Duration) ([]domain.Run, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	cur, err := s.coll.Find(ctx, bson.M{
		"status":     domain.RunStatusRunning,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("list stale runs: %w", err)
	}
	defer cur.Close(ctx)

	var runs []domain.Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode stale runs: %w", err)
	}
	return runs, nil
}
