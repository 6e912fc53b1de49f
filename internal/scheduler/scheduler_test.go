package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/dispatch"
	"github.com/shaiso/Relay/internal/domain"
)

func TestCalculateNextDue_Interval(t *testing.T) {
	from := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	spec := &domain.ScheduleSpec{IntervalSec: 300}

	next, err := CalculateNextDue(spec, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := from.Add(5 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestCalculateNextDue_Cron(t *testing.T) {
	from := time.Date(2025, 3, 10, 12, 17, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 * * * *", time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)},
		{"30 9 * * 1", time.Date(2025, 3, 17, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			next, err := CalculateNextDue(&domain.ScheduleSpec{CronExpr: tt.expr}, from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !next.Equal(tt.want) {
				t.Errorf("got %v, want %v", next, tt.want)
			}
		})
	}
}

func TestCalculateNextDue_Timezone(t *testing.T) {
	// 23:30 UTC = 02:30 следующего дня в Москве; ежедневный запуск
	// в 03:00 по московскому времени наступает через полчаса
	from := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	spec := &domain.ScheduleSpec{CronExpr: "0 3 * * *", Timezone: "Europe/Moscow"}

	next, err := CalculateNextDue(spec, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestCalculateNextDue_Empty(t *testing.T) {
	if _, err := CalculateNextDue(&domain.ScheduleSpec{}, time.Now()); err == nil {
		t.Error("expected error for empty schedule")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("61 * * * *"); err == nil {
		t.Error("invalid minute accepted")
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("garbage accepted")
	}
}

// fakeSubmitter запоминает принятые запросы.
type fakeSubmitter struct {
	mu       sync.Mutex
	requests []dispatch.RunRequest
}

func (f *fakeSubmitter) Submit(_ context.Context, req dispatch.RunRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return uuid.New(), nil
}

type fakeJobSource struct {
	jobs []domain.JobDefinition
}

func (f *fakeJobSource) ListScheduled(_ context.Context) ([]domain.JobDefinition, error) {
	return f.jobs, nil
}

func scheduledJob(intervalSec int) domain.JobDefinition {
	return domain.JobDefinition{
		ID:       uuid.New(),
		Name:     "nightly-sync",
		IsActive: true,
		Schedule: &domain.ScheduleSpec{
			IntervalSec: intervalSec,
			Payload:     map[string]any{"source": "schedule"},
		},
	}
}

func TestScheduler_TickSubmitsDueJobs(t *testing.T) {
	job := scheduledJob(1)
	source := &fakeJobSource{jobs: []domain.JobDefinition{job}}
	submitter := &fakeSubmitter{}

	s := New(Config{Jobs: source, Submitter: submitter, Logger: slog.Default()})

	// Первый тик только регистрирует расписание
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(submitter.requests) != 0 {
		t.Fatalf("first tick must not submit, got %d", len(submitter.requests))
	}

	// Когда срок наступил, тик отправляет запуск
	s.nextDue[job.ID] = time.Now().Add(-time.Second)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(submitter.requests) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(submitter.requests))
	}

	req := submitter.requests[0]
	if req.JobID != job.ID {
		t.Errorf("job id: got %s", req.JobID)
	}
	if req.IdempotencyKey == "" {
		t.Error("scheduled run must carry idempotency key")
	}
	if req.Trigger["source"] != "schedule" {
		t.Errorf("trigger payload lost: %v", req.Trigger)
	}

	// После срабатывания назначен следующий срок
	if next := s.nextDue[job.ID]; !next.After(time.Now()) {
		t.Errorf("next due not advanced: %v", next)
	}
}

func TestScheduler_IdempotencyKeyIsStablePerDue(t *testing.T) {
	job := scheduledJob(60)
	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	want := fmt.Sprintf("%s_%d", job.ID, due.Unix())

	submitter := &fakeSubmitter{}
	s := New(Config{Jobs: &fakeJobSource{}, Submitter: submitter, Logger: slog.Default()})

	if !s.submitDue(context.Background(), &job, due) {
		t.Fatal("submitDue failed")
	}
	if got := submitter.requests[0].IdempotencyKey; got != want {
		t.Errorf("key: got %q, want %q", got, want)
	}
}

func TestScheduler_RemovedJobForgotten(t *testing.T) {
	job := scheduledJob(60)
	source := &fakeJobSource{jobs: []domain.JobDefinition{job}}
	submitter := &fakeSubmitter{}

	s := New(Config{Jobs: source, Submitter: submitter, Logger: slog.Default()})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.nextDue[job.ID]; !ok {
		t.Fatal("job not registered")
	}

	// Задание снято с расписания, его состояние очищается
	source.jobs = nil
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.nextDue[job.ID]; ok {
		t.Error("removed job still tracked")
	}
}
