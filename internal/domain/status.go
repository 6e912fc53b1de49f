package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
//
// Статус монотонен: терминальные статусы никогда не перезаписываются,
// RUNNING не возвращается в PENDING.
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода статуса.
// Допустимы только переходы "вперёд" по жизненному циклу.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusCancelled
	case RunStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// StepStatus — исход выполнения шага.
type StepStatus string

const (
	// StepStatusSucceeded — шаг выполнен успешно.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг упал (после всех retry).
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped — guard шага вернул false, шаг пропущен.
	StepStatusSkipped StepStatus = "SKIPPED"
)
