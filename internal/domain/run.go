package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения job (RunRecord).
//
// Run создаётся когда:
//   - Внешний API-коллаборатор отправляет trigger
//   - Scheduler создаёт run по расписанию job
//
// Run — единственный источник истины об истории выполнения:
// актор не хранит состояние дольше жизни процесса. Упавший посреди
// run процесс оставляет запись в RUNNING с частичным журналом
// outcomes — это документированный сигнал для внешней reconciliation.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id" bson:"_id"`

	// JobID — ссылка на выполняемый job.
	JobID uuid.UUID `json:"job_id" bson:"job_id"`

	// TenantID — владелец run (копия из JobDefinition).
	TenantID uuid.UUID `json:"tenant_id" bson:"tenant_id"`

	// Status — текущий статус. Монотонен (см. RunStatus).
	Status RunStatus `json:"status" bson:"status"`

	// Trigger — payload, переданный при запуске.
	// Накладывается поверх JobDefinition.Defaults при seed контекста.
	Trigger map[string]any `json:"trigger,omitempty" bson:"trigger,omitempty"`

	// Outcomes — журнал исходов шагов в порядке выполнения.
	// Append-only: записанный терминальный исход шага не переписывается.
	Outcomes []StepOutcome `json:"outcomes,omitempty" bson:"outcomes,omitempty"`

	// FinalContext — снимок контекста на момент завершения run.
	FinalContext map[string]any `json:"final_context,omitempty" bson:"final_context,omitempty"`

	// Error — текст ошибки при FAILED.
	Error string `json:"error,omitempty" bson:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности.
	// Для scheduled runs: "{job_id}_{due_at}".
	IdempotencyKey string `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`

	// UpdatedAt — время последней записи (для staleness-окна).
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// StepOutcome — исход выполнения одного шага.
//
// Записывается актором после терминального исхода шага
// (успех, skip или исчерпанные retry) и больше не изменяется.
type StepOutcome struct {
	// StepID — ID шага из JobDefinition.
	StepID string `json:"step_id" bson:"step_id"`

	// Status — исход: SUCCEEDED, FAILED или SKIPPED.
	Status StepStatus `json:"status" bson:"status"`

	// Attempts — сколько попыток было сделано (0 для SKIPPED).
	Attempts int `json:"attempts" bson:"attempts"`

	// Request — снимок отрендеренного запроса (nil для SKIPPED).
	Request *RequestSnapshot `json:"request,omitempty" bson:"request,omitempty"`

	// Response — снимок ответа последней попытки.
	Response *ResponseSnapshot `json:"response,omitempty" bson:"response,omitempty"`

	// Error — ошибка последней попытки при FAILED.
	Error string `json:"error,omitempty" bson:"error,omitempty"`

	// StartedAt — время начала шага.
	StartedAt time.Time `json:"started_at" bson:"started_at"`

	// DurationMs — длительность шага в миллисекундах.
	DurationMs int64 `json:"duration_ms" bson:"duration_ms"`
}

// RequestSnapshot — отрендеренный исходящий запрос.
// Значения чувствительных заголовков редактируются до записи.
type RequestSnapshot struct {
	Method  string            `json:"method" bson:"method"`
	URL     string            `json:"url" bson:"url"`
	Headers map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
	Body    string            `json:"body,omitempty" bson:"body,omitempty"`
}

// ResponseSnapshot — захваченный ответ исходящего вызова.
type ResponseSnapshot struct {
	// StatusCode — HTTP статус ответа.
	StatusCode int `json:"status_code" bson:"status_code"`

	// Body — тело ответа, обрезанное до настроенного лимита.
	Body string `json:"body,omitempty" bson:"body,omitempty"`

	// Truncated — true, если тело было обрезано.
	// Обрезка всегда помечается, тело никогда не отбрасывается молча.
	Truncated bool `json:"truncated,omitempty" bson:"truncated,omitempty"`
}

// Duration возвращает продолжительность выполнения run.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// HasOutcome проверяет, записан ли уже исход для шага.
func (r *Run) HasOutcome(stepID string) bool {
	for i := range r.Outcomes {
		if r.Outcomes[i].StepID == stepID {
			return true
		}
	}
	return false
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded(finalContext map[string]any) {
	now := time.Now().UTC()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
	r.UpdatedAt = now
	r.FinalContext = finalContext
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.UpdatedAt = now
	r.Error = errMsg
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now().UTC()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
	r.UpdatedAt = now
}
