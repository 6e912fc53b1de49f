package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobDefinition — определение фонового задания.
//
// Job — это "рецепт": упорядоченная последовательность шагов,
// каждый из которых выполняет исходящий HTTP вызов, опционально
// защищённый guard-выражением.
//
// Определения создаются и редактируются внешним API-коллаборатором;
// для worker'а они read-only. Определение неизменяемо с момента
// старта run — актор загружает его один раз при переходе в Loading.
type JobDefinition struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id" bson:"_id"`

	// Name — человекочитаемое имя (например, "sync-devices").
	Name string `json:"name" bson:"name"`

	// TenantID — владелец определения.
	TenantID uuid.UUID `json:"tenant_id" bson:"tenant_id"`

	// IsActive — неактивные jobs нельзя запускать.
	IsActive bool `json:"is_active" bson:"is_active"`

	// Defaults — значения контекста по умолчанию.
	// Trigger payload накладывается поверх них при старте run.
	Defaults map[string]any `json:"defaults,omitempty" bson:"defaults,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []Step `json:"steps" bson:"steps"`

	// Schedule — расписание автоматического запуска (опционально).
	Schedule *ScheduleSpec `json:"schedule,omitempty" bson:"schedule,omitempty"`

	// DefaultTimeoutSec — таймаут шага, если шаг не задал свой.
	DefaultTimeoutSec int `json:"default_timeout_sec,omitempty" bson:"default_timeout_sec,omitempty"`

	// DefaultRetry — политика retry, если шаг не задал свою.
	DefaultRetry *RetryPolicy `json:"default_retry,omitempty" bson:"default_retry,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Step — один шаг job: guard-выражение, шаблон исходящего запроса
// и правило извлечения результата в контекст.
type Step struct {
	// ID — уникальный идентификатор шага в рамках job.
	ID string `json:"id" bson:"id"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name,omitempty" bson:"name,omitempty"`

	// Guard — булево выражение, определяющее, выполняется ли шаг.
	// Пустая строка — шаг выполняется всегда.
	// Guard вычисляется rule evaluator'ом, не шаблонизатором.
	Guard string `json:"guard,omitempty" bson:"guard,omitempty"`

	// Engine — движок шаблонов для этого шага: "gotmpl" или "mustache".
	// Пустая строка — gotmpl.
	Engine string `json:"engine,omitempty" bson:"engine,omitempty"`

	// Strict — поведение при неразрешённой переменной шаблона.
	// nil или true — ошибка рендеринга; false — подстановка пустой строки.
	Strict *bool `json:"strict,omitempty" bson:"strict,omitempty"`

	// Request — шаблон исходящего HTTP запроса.
	Request RequestTemplate `json:"request" bson:"request"`

	// Auth — способ аутентификации исходящего вызова.
	Auth *StepAuth `json:"auth,omitempty" bson:"auth,omitempty"`

	// Extract — выражение, извлекающее значение из контекста после
	// успешного вызова (ответ доступен под ключами response.*).
	// Пустая строка — ничего не извлекается.
	Extract string `json:"extract,omitempty" bson:"extract,omitempty"`

	// ExtractTo — ключ контекста, под который кладётся результат Extract.
	ExtractTo string `json:"extract_to,omitempty" bson:"extract_to,omitempty"`

	// Retry — политика повторных попыток, переопределяет DefaultRetry.
	Retry *RetryPolicy `json:"retry,omitempty" bson:"retry,omitempty"`

	// TimeoutSec — таймаут вызова, переопределяет DefaultTimeoutSec.
	TimeoutSec int `json:"timeout_sec,omitempty" bson:"timeout_sec,omitempty"`
}

// RequestTemplate — шаблоны частей исходящего запроса.
// Каждое поле рендерится движком шага против текущего контекста.
type RequestTemplate struct {
	// Method — HTTP метод (может быть шаблоном, обычно литерал).
	Method string `json:"method" bson:"method"`

	// URL — шаблон URL.
	URL string `json:"url" bson:"url"`

	// Headers — шаблоны заголовков (ключ → шаблон значения).
	Headers map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`

	// Body — шаблон тела запроса.
	Body string `json:"body,omitempty" bson:"body,omitempty"`
}

// Режимы аутентификации шага.
const (
	// StepAuthNone — без аутентификации.
	StepAuthNone = "none"

	// StepAuthBearer — bearer token от Auth Guard (identity worker'а).
	StepAuthBearer = "bearer"

	// StepAuthBasic — HTTP Basic.
	StepAuthBasic = "basic"

	// StepAuthHeader — статический заголовок (API key).
	StepAuthHeader = "header"
)

// StepAuth — конфигурация аутентификации исходящего вызова.
type StepAuth struct {
	// Mode — один из StepAuth* режимов.
	Mode string `json:"mode" bson:"mode"`

	// Scope — scope для bearer токена (mode=bearer).
	Scope string `json:"scope,omitempty" bson:"scope,omitempty"`

	// Username, Password — для mode=basic.
	Username string `json:"username,omitempty" bson:"username,omitempty"`
	Password string `json:"password,omitempty" bson:"password,omitempty"`

	// HeaderName, HeaderValue — для mode=header.
	HeaderName  string `json:"header_name,omitempty" bson:"header_name,omitempty"`
	HeaderValue string `json:"header_value,omitempty" bson:"header_value,omitempty"`
}

// RetryPolicy — политика повторных попыток шага.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty" bson:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty" bson:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty" bson:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty" bson:"max_delay_ms,omitempty"`
}

// ScheduleSpec — расписание автоматического запуска job.
type ScheduleSpec struct {
	// CronExpr — cron-выражение ("0 9 * * *").
	// Если задано, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty" bson:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty" bson:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron ("UTC" по умолчанию).
	Timezone string `json:"timezone,omitempty" bson:"timezone,omitempty"`

	// Payload — trigger payload для создаваемых runs.
	Payload map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
}

// RetryFor возвращает действующую политику retry для шага:
// политика шага, иначе политика job, иначе nil (одна попытка).
func (j *JobDefinition) RetryFor(step *Step) *RetryPolicy {
	if step.Retry != nil {
		return step.Retry
	}
	return j.DefaultRetry
}

// TimeoutFor возвращает действующий таймаут шага в секундах.
// 0 — использовать глобальный default из конфигурации.
func (j *JobDefinition) TimeoutFor(step *Step) int {
	if step.TimeoutSec > 0 {
		return step.TimeoutSec
	}
	return j.DefaultTimeoutSec
}

// IsStrict возвращает действующий режим strict шага.
// По умолчанию — strict: неразрешённая переменная это ошибка.
func (s *Step) IsStrict() bool {
	return s.Strict == nil || *s.Strict
}

// EngineTag возвращает движок шаблонов шага с учётом default.
func (s *Step) EngineTag() string {
	if s.Engine == "" {
		return "gotmpl"
	}
	return s.Engine
}
