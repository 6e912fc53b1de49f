package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/dispatch"
	"github.com/shaiso/Relay/internal/domain"
)

// JobSource возвращает активные задания с расписанием.
type JobSource interface {
	ListScheduled(ctx context.Context) ([]domain.JobDefinition, error)
}

// Submitter принимает запросы на запуск.
type Submitter interface {
	Submit(ctx context.Context, req dispatch.RunRequest) (uuid.UUID, error)
}

// Scheduler запускает задания по расписанию. Ключ идемпотентности
// {jobID}_{dueAt} гарантирует не больше одного run на момент срабатывания
// даже при нескольких экземплярах worker.
type Scheduler struct {
	jobs      JobSource
	submitter Submitter
	logger    *slog.Logger
	interval  time.Duration

	nextDue map[uuid.UUID]time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Jobs      JobSource
	Submitter Submitter
	Logger    *slog.Logger

	// TickInterval — период опроса расписаний (default: 15s).
	TickInterval time.Duration
}

// New создаёт планировщик.
func New(cfg Config) *Scheduler {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		jobs:      cfg.Jobs,
		submitter: cfg.Submitter,
		logger:    cfg.Logger,
		interval:  interval,
		nextDue:   map[uuid.UUID]time.Time{},
	}
}

// Run крутит тики до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler запущен", "tick_interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick планировщика не удался", "error", err)
			}
		}
	}
}

// Tick находит due задания и ставит их в очередь.
// Ошибки одного задания не блокируют остальные.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	jobs, err := s.jobs.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled jobs: %w", err)
	}

	seen := map[uuid.UUID]bool{}
	var submitted int
	for i := range jobs {
		job := &jobs[i]
		seen[job.ID] = true

		due, ok := s.nextDue[job.ID]
		if !ok {
			// Новое расписание: первое срабатывание в следующий момент.
			next, err := CalculateNextDue(job.Schedule, now)
			if err != nil {
				s.logger.Warn("некорректное расписание", "job_id", job.ID, "error", err)
				continue
			}
			s.nextDue[job.ID] = next
			continue
		}

		if now.Before(due) {
			continue
		}

		if s.submitDue(ctx, job, due) {
			submitted++
		}

		next, err := CalculateNextDue(job.Schedule, now)
		if err != nil {
			s.logger.Warn("некорректное расписание", "job_id", job.ID, "error", err)
			delete(s.nextDue, job.ID)
			continue
		}
		s.nextDue[job.ID] = next
	}

	// Убираем задания, снятые с расписания.
	for id := range s.nextDue {
		if !seen[id] {
			delete(s.nextDue, id)
		}
	}

	if submitted > 0 {
		s.logger.Info("scheduler tick", "due_jobs", submitted)
	}
	return nil
}

// submitDue отправляет один due запуск. Дубликат по ключу
// идемпотентности не считается ошибкой.
func (s *Scheduler) submitDue(ctx context.Context, job *domain.JobDefinition, due time.Time) bool {
	key := fmt.Sprintf("%s_%d", job.ID, due.Unix())

	runID, err := s.submitter.Submit(ctx, dispatch.RunRequest{
		JobID:          job.ID,
		Trigger:        job.Schedule.Payload,
		IdempotencyKey: key,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrOverloaded) {
			s.logger.Warn("запуск по расписанию отложен: перегрузка", "job_id", job.ID)
		} else {
			s.logger.Error("запуск по расписанию не принят", "job_id", job.ID, "error", err)
		}
		return false
	}

	s.logger.Info("запуск по расписанию принят", "job_id", job.ID, "run_id", runID, "due_at", due)
	return true
}
