package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/telemetry"
)

// State — фаза жизненного цикла актора.
type State string

const (
	// StateCreated — актор создан, run ещё не загружен.
	StateCreated State = "created"

	// StateLoading — загрузка определения задания и перевод run в RUNNING.
	StateLoading State = "loading"

	// StateStepping — выполнение очередного шага.
	StateStepping State = "stepping"

	// StateWaiting — пауза backoff между попытками шага.
	StateWaiting State = "waiting"

	// StateFinished — run переведён в терминальный статус.
	StateFinished State = "finished"
)

// RunWriter — нужная актору часть хранилища запусков.
type RunWriter interface {
	MarkRunning(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	AppendStepOutcome(ctx context.Context, runID uuid.UUID, outcome domain.StepOutcome) error
	Finalize(ctx context.Context, runID uuid.UUID, status domain.RunStatus, errMsg string, finalContext map[string]any) error
}

// Actor выполняет один run от начала до терминального статуса.
// Контекст run принадлежит актору монопольно; наружу уходят только
// снимки через хранилище.
type Actor struct {
	job    *domain.JobDefinition
	run    *domain.Run
	runs   RunWriter
	caller *Caller
	log    *slog.Logger

	state  State
	runCtx *engine.Context
}

// New создаёт актор для запуска run по заданию job.
func New(job *domain.JobDefinition, run *domain.Run, runs RunWriter, caller *Caller) *Actor {
	return &Actor{
		job:    job,
		run:    run,
		runs:   runs,
		caller: caller,
		log: telemetry.WithJobID(
			telemetry.WithRunID(slog.Default(), run.ID.String()),
			job.ID.String(),
		),
		state: StateCreated,
	}
}

// State возвращает текущую фазу актора.
func (a *Actor) State() State {
	return a.state
}

// Run выполняет run до терминального статуса. Отмена ctx наблюдается
// на границах шагов и во время backoff; начатый HTTP-вызов доводится
// до конца.
func (a *Actor) Run(ctx context.Context) domain.RunStatus {
	telemetry.ActiveActors.Inc()
	defer telemetry.ActiveActors.Dec()

	status := a.execute(ctx)
	a.state = StateFinished
	telemetry.RunsFinished.WithLabelValues(string(status)).Inc()
	return status
}

func (a *Actor) execute(ctx context.Context) domain.RunStatus {
	a.state = StateLoading

	if err := ctx.Err(); err != nil {
		return a.finalize(domain.RunStatusCancelled, "")
	}

	if err := a.runs.MarkRunning(context.Background(), a.run.ID, time.Now().UTC()); err != nil {
		// Run уже не PENDING: отменён до старта или подхвачен повторно.
		a.log.Warn("run не переведён в RUNNING", "error", err)
		return a.run.Status
	}
	a.run.MarkRunning()

	a.runCtx = engine.NewContext(a.job.Defaults, a.run.Trigger)
	a.log.Info("run начат", "steps", len(a.job.Steps))

	for i := range a.job.Steps {
		step := &a.job.Steps[i]
		stepLog := telemetry.WithStepID(a.log, step.ID)

		if err := ctx.Err(); err != nil {
			stepLog.Info("run отменён на границе шага")
			return a.finalize(domain.RunStatusCancelled, "")
		}
		if a.run.HasOutcome(step.ID) {
			// Повторный запуск после сбоя процесса: шаг уже записан.
			stepLog.Debug("шаг уже выполнен, пропуск")
			continue
		}

		outcome, err := a.runStep(ctx, step, stepLog)
		if appendErr := a.runs.AppendStepOutcome(context.Background(), a.run.ID, *outcome); appendErr != nil {
			stepLog.Error("исход шага не сохранён", "error", appendErr)
			return a.finalize(domain.RunStatusFailed, fmt.Sprintf("persist step %s: %v", step.ID, appendErr))
		}
		a.run.Outcomes = append(a.run.Outcomes, *outcome)

		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return a.finalize(domain.RunStatusCancelled, "")
			}
			return a.finalize(domain.RunStatusFailed, outcome.Error)
		}
	}

	return a.finalize(domain.RunStatusSucceeded, "")
}

// runStep выполняет один шаг: guard, рендер, вызов с retry, extract.
// Возвращаемый исход записывается всегда, даже при ошибке.
func (a *Actor) runStep(ctx context.Context, step *domain.Step, log *slog.Logger) (*domain.StepOutcome, error) {
	a.state = StateStepping
	started := time.Now().UTC()

	outcome := &domain.StepOutcome{
		StepID:    step.ID,
		StartedAt: started,
	}
	finish := func() {
		outcome.DurationMs = time.Since(started).Milliseconds()
	}
	defer finish()

	// Guard: false пропускает шаг, ошибка вычисления валит run.
	if step.Guard != "" {
		pass, err := engine.EvaluateBool(step.Guard, a.runCtx)
		if err != nil {
			outcome.Status = domain.StepStatusFailed
			outcome.Error = fmt.Sprintf("guard: %v", err)
			log.Warn("ошибка guard", "error", err)
			return outcome, fmt.Errorf("guard of step %s: %w", step.ID, err)
		}
		if !pass {
			outcome.Status = domain.StepStatusSkipped
			log.Info("guard вернул false, шаг пропущен")
			return outcome, nil
		}
	}

	snap, err := a.caller.renderRequest(step, a.runCtx)
	if err != nil {
		outcome.Status = domain.StepStatusFailed
		outcome.Error = err.Error()
		log.Warn("ошибка рендера запроса", "error", err)
		return outcome, fmt.Errorf("render step %s: %w", step.ID, err)
	}
	outcome.Request = snap

	result, err := a.callWithRetry(ctx, step, snap, outcome, log)
	if err != nil {
		return outcome, err
	}

	// Extract: значение из контекста (включая ответ шага) в ExtractTo.
	if step.Extract != "" {
		if err := a.extract(step, result); err != nil {
			outcome.Status = domain.StepStatusFailed
			outcome.Error = err.Error()
			log.Warn("ошибка extract", "error", err)
			return outcome, err
		}
	}

	outcome.Status = domain.StepStatusSucceeded
	log.Info("шаг выполнен", "attempts", outcome.Attempts, "status_code", outcome.Response.StatusCode)
	return outcome, nil
}

// callWithRetry выполняет вызов с повторами по политике шага.
func (a *Actor) callWithRetry(ctx context.Context, step *domain.Step, snap *domain.RequestSnapshot, outcome *domain.StepOutcome, log *slog.Logger) (*callResult, error) {
	policy := a.job.RetryFor(step)
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}
	timeout := time.Duration(a.job.TimeoutFor(step)) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt

		result, err := a.caller.Call(ctx, step, snap, timeout)
		if result != nil {
			outcome.Response = &result.Response
		}
		if err == nil {
			telemetry.StepAttempts.WithLabelValues("success").Inc()
			return result, nil
		}

		telemetry.StepAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		log.Warn("попытка шага не удалась", "attempt", attempt, "error", err)

		// 401 означает отозванный или протухший токен: повтор с тем же
		// токеном бессмыслен.
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			a.caller.InvalidateAuth(step)
		}

		if attempt == maxAttempts {
			break
		}

		a.state = StateWaiting
		if err := sleepBackoff(ctx, backoffDelay(attempt, policy)); err != nil {
			outcome.Status = domain.StepStatusFailed
			outcome.Error = lastErr.Error()
			return nil, ErrCancelled
		}
		a.state = StateStepping
	}

	outcome.Status = domain.StepStatusFailed
	outcome.Error = lastErr.Error()
	return nil, fmt.Errorf("step %s exhausted %d attempts: %w", step.ID, maxAttempts, lastErr)
}

// extract вычисляет выражение шага над контекстом, дополненным ответом,
// и записывает результат в контекст под ExtractTo.
func (a *Actor) extract(step *domain.Step, result *callResult) error {
	// Ответ шага виден выражению под ключом "response".
	a.runCtx.Set("response", map[string]any{
		"status_code": result.Response.StatusCode,
		"body":        result.Parsed,
	})
	defer a.runCtx.Delete("response")

	value, err := engine.Evaluate(step.Extract, a.runCtx)
	if err != nil {
		return fmt.Errorf("extract of step %s: %w", step.ID, err)
	}

	a.runCtx.Set(step.ExtractTo, value)
	return nil
}

// finalize переводит run в терминальный статус и сохраняет его.
func (a *Actor) finalize(status domain.RunStatus, errMsg string) domain.RunStatus {
	var finalCtx map[string]any
	if a.runCtx != nil {
		finalCtx = a.runCtx.Snapshot()
	}

	switch status {
	case domain.RunStatusSucceeded:
		a.run.MarkSucceeded(finalCtx)
	case domain.RunStatusCancelled:
		a.run.MarkCancelled()
	default:
		a.run.MarkFailed(errMsg)
	}

	if err := a.runs.Finalize(context.Background(), a.run.ID, status, errMsg, finalCtx); err != nil {
		a.log.Error("run не финализирован", "status", status, "error", err)
	} else {
		a.log.Info("run завершён", "status", status)
	}
	return status
}
