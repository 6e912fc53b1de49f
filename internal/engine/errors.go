package engine

import "fmt"

// EvalErrorKind — вид ошибки вычисления выражения.
type EvalErrorKind string

const (
	// EvalUnknownVariable — переменная отсутствует в контексте.
	EvalUnknownVariable EvalErrorKind = "unknown_variable"

	// EvalTypeMismatch — несовместимые типы операндов.
	// Коэрция типов не выполняется: сравнение строки с числом — ошибка.
	EvalTypeMismatch EvalErrorKind = "type_mismatch"

	// EvalSyntax — выражение не парсится.
	EvalSyntax EvalErrorKind = "syntax"

	// EvalNotBoolean — guard-выражение вернуло не bool.
	EvalNotBoolean EvalErrorKind = "not_boolean"
)

// EvalError — ошибка вычисления guard или extract выражения.
type EvalError struct {
	// Kind — вид ошибки.
	Kind EvalErrorKind

	// Path — dotted path переменной (для EvalUnknownVariable).
	Path string

	// Expr — исходное выражение.
	Expr string

	// Err — базовая ошибка evaluator'а.
	Err error
}

// Error реализует интерфейс error.
func (e *EvalError) Error() string {
	switch e.Kind {
	case EvalUnknownVariable:
		return fmt.Sprintf("evaluate %q: unknown variable %q", e.Expr, e.Path)
	case EvalNotBoolean:
		return fmt.Sprintf("evaluate %q: result is not a boolean", e.Expr)
	default:
		return fmt.Sprintf("evaluate %q: %v", e.Expr, e.Err)
	}
}

// Unwrap возвращает базовую ошибку.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// RenderErrorKind — вид ошибки рендеринга шаблона.
type RenderErrorKind string

const (
	// RenderUnknownVariable — переменная шаблона не разрешена
	// (и strict не отключён).
	RenderUnknownVariable RenderErrorKind = "unknown_variable"

	// RenderEngineFailure — ошибка движка (парсинг, выполнение).
	RenderEngineFailure RenderErrorKind = "engine_failure"

	// RenderUnknownEngine — запрошен незарегистрированный движок.
	RenderUnknownEngine RenderErrorKind = "unknown_engine"
)

// RenderError — ошибка рендеринга шаблона.
type RenderError struct {
	Kind   RenderErrorKind
	Engine string
	Path   string // имя переменной для RenderUnknownVariable
	Err    error
}

// Error реализует интерфейс error.
func (e *RenderError) Error() string {
	switch e.Kind {
	case RenderUnknownVariable:
		return fmt.Sprintf("render (%s): unresolved variable %q", e.Engine, e.Path)
	case RenderUnknownEngine:
		return fmt.Sprintf("render: unknown engine %q", e.Engine)
	default:
		return fmt.Sprintf("render (%s): %v", e.Engine, e.Err)
	}
}

// Unwrap возвращает базовую ошибку.
func (e *RenderError) Unwrap() error {
	return e.Err
}
