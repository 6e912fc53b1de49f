package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/actor"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/store"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Ошибки приёма запросов на запуск.
var (
	// ErrOverloaded — очередь заполнена, запрос отклонён без
	// каких-либо изменений состояния.
	ErrOverloaded = errors.New("dispatcher overloaded")

	// ErrJobNotFound — задание не существует.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobInactive — задание деактивировано.
	ErrJobInactive = errors.New("job is not active")

	// ErrStopped — dispatcher останавливается и не принимает запросы.
	ErrStopped = errors.New("dispatcher stopped")
)

// RunRequest — запрос на запуск задания.
type RunRequest struct {
	JobID          uuid.UUID
	Trigger        map[string]any
	IdempotencyKey string
}

// Notifier получает уведомления о терминальных переходах run.
type Notifier interface {
	RunFinished(ctx context.Context, run *domain.Run)
}

// JobLoader загружает определения заданий.
type JobLoader interface {
	Load(ctx context.Context, jobID uuid.UUID) (*domain.JobDefinition, error)
}

// RunStore — нужная dispatcher часть хранилища запусков.
type RunStore interface {
	actor.RunWriter
	Create(ctx context.Context, run *domain.Run) error
	GetByIdempotencyKey(ctx context.Context, jobID uuid.UUID, key string) (*domain.Run, error)
}

// Config — параметры dispatcher.
type Config struct {
	// QueueSize — ёмкость очереди ожидающих запусков.
	QueueSize int

	// Concurrency — число одновременно работающих акторов.
	Concurrency int

	// DefaultTimeoutSec — глобальный таймаут шага, применяется когда
	// ни шаг, ни job не задают свой.
	DefaultTimeoutSec int

	// DefaultRetry — глобальная политика retry, применяется когда
	// ни шаг, ни job не задают свою.
	DefaultRetry *domain.RetryPolicy
}

type work struct {
	job *domain.JobDefinition
	run *domain.Run
	ctx context.Context
}

// Dispatcher принимает запросы на запуск, ставит их в ограниченную
// очередь и выполняет по одному актору на run.
type Dispatcher struct {
	jobs     JobLoader
	runs     RunStore
	caller   *actor.Caller
	notifier Notifier
	log      *slog.Logger
	defaults Config

	queue chan work
	slots chan struct{}

	mu      sync.Mutex
	active  map[uuid.UUID]context.CancelFunc
	stopped bool

	wg sync.WaitGroup
}

// New создаёт dispatcher.
func New(cfg Config, jobs JobLoader, runs RunStore, caller *actor.Caller, notifier Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Dispatcher{
		jobs:     jobs,
		runs:     runs,
		caller:   caller,
		notifier: notifier,
		log:      slog.Default().With("component", "dispatcher"),
		defaults: cfg,
		queue:    make(chan work, cfg.QueueSize),
		slots:    make(chan struct{}, cfg.QueueSize),
		active:   map[uuid.UUID]context.CancelFunc{},
	}
}

// Start запускает пул исполнителей.
func (d *Dispatcher) Start(n int) {
	if n <= 0 {
		n = d.defaults.Concurrency
	}
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("dispatcher запущен", "workers", n, "queue", cap(d.queue))
}

// Submit принимает запрос на запуск. Переполнение очереди приводит к
// ErrOverloaded до любых изменений состояния.
func (d *Dispatcher) Submit(ctx context.Context, req RunRequest) (uuid.UUID, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return uuid.Nil, ErrStopped
	}
	d.mu.Unlock()

	// Слот очереди резервируется до создания записи: отказ дешёвый
	// и не оставляет следов.
	select {
	case d.slots <- struct{}{}:
	default:
		telemetry.RunsRejected.Inc()
		return uuid.Nil, ErrOverloaded
	}

	runID, err := d.submit(ctx, req)
	if err != nil {
		<-d.slots
		return uuid.Nil, err
	}
	return runID, nil
}

func (d *Dispatcher) submit(ctx context.Context, req RunRequest) (uuid.UUID, error) {
	job, err := d.jobs.Load(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrJobNotFound, req.JobID)
		}
		return uuid.Nil, err
	}
	if !job.IsActive {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrJobInactive, req.JobID)
	}
	// Определение могло попасть в хранилище в обход API: некорректное
	// падает здесь, до создания run, а не посреди выполнения.
	if err := job.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("job %s: %w", req.JobID, err)
	}

	// Глобальные defaults применяются там, где job молчит.
	if job.DefaultTimeoutSec == 0 {
		job.DefaultTimeoutSec = d.defaults.DefaultTimeoutSec
	}
	if job.DefaultRetry == nil {
		job.DefaultRetry = d.defaults.DefaultRetry
	}

	if req.IdempotencyKey != "" {
		if existing, err := d.runs.GetByIdempotencyKey(ctx, req.JobID, req.IdempotencyKey); err == nil {
			// Повтор существующего run: слот не понадобится.
			<-d.slots
			return existing.ID, nil
		}
	}

	now := time.Now().UTC()
	run := &domain.Run{
		ID:             uuid.New(),
		JobID:          job.ID,
		TenantID:       job.TenantID,
		Status:         domain.RunStatusPending,
		Trigger:        req.Trigger,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.runs.Create(ctx, run); err != nil {
		if errors.Is(err, store.ErrConflict) && req.IdempotencyKey != "" {
			if existing, lookupErr := d.runs.GetByIdempotencyKey(ctx, req.JobID, req.IdempotencyKey); lookupErr == nil {
				<-d.slots
				return existing.ID, nil
			}
		}
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	// Отправка под мьютексом: Stop закрывает очередь под ним же, и
	// зарезервированный слот гарантирует, что отправка не блокирует.
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		cancel()
		err := d.runs.Finalize(context.Background(), run.ID,
			domain.RunStatusCancelled, "worker shutting down", nil)
		if err != nil {
			d.log.Warn("run не финализирован при остановке", "run_id", run.ID, "error", err)
		}
		return uuid.Nil, ErrStopped
	}
	d.active[run.ID] = cancel
	d.queue <- work{job: job, run: run, ctx: runCtx}
	d.mu.Unlock()

	telemetry.RunsSubmitted.Inc()
	telemetry.QueueDepth.Set(float64(len(d.queue)))

	d.log.Info("run принят", "run_id", run.ID, "job_id", job.ID)
	return run.ID, nil
}

// Cancel запрашивает отмену run. Возвращает false, если run не активен.
func (d *Dispatcher) Cancel(runID uuid.UUID) bool {
	d.mu.Lock()
	cancel, ok := d.active[runID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for w := range d.queue {
		<-d.slots
		telemetry.QueueDepth.Set(float64(len(d.queue)))

		a := actor.New(w.job, w.run, d.runs, d.caller)
		a.Run(w.ctx)

		d.mu.Lock()
		if cancel, ok := d.active[w.run.ID]; ok {
			cancel()
			delete(d.active, w.run.ID)
		}
		d.mu.Unlock()

		if d.notifier != nil {
			d.notifier.RunFinished(context.Background(), w.run)
		}
	}
}

// Stop прекращает приём запросов и дожидается завершения активных
// акторов. Уже стоящие в очереди runs доводятся до конца.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("dispatcher остановлен")
}
