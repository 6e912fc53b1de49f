package domain

import (
	"errors"
	"fmt"
)

// Ошибки валидации JobDefinition.
var (
	// ErrEmptySteps — job не содержит шагов.
	ErrEmptySteps = errors.New("job has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownEngine — неизвестный движок шаблонов.
	ErrUnknownEngine = errors.New("unknown template engine")

	// ErrUnknownAuthMode — неизвестный режим аутентификации шага.
	ErrUnknownAuthMode = errors.New("unknown step auth mode")

	// ErrMissingURL — шаг без URL.
	ErrMissingURL = errors.New("step request has no url")

	// ErrExtractWithoutKey — Extract задан без ExtractTo.
	ErrExtractWithoutKey = errors.New("extract expression without extract_to key")
)

// knownEngines — допустимые значения тега движка.
var knownEngines = map[string]bool{
	"":         true, // default → gotmpl
	"gotmpl":   true,
	"mustache": true,
}

// knownAuthModes — допустимые режимы аутентификации.
var knownAuthModes = map[string]bool{
	StepAuthNone:   true,
	StepAuthBearer: true,
	StepAuthBasic:  true,
	StepAuthHeader: true,
}

// Validate проверяет структурную корректность определения.
//
// Вызывается при сохранении определения и повторно при приёме запроса
// на запуск: некорректное определение падает до создания run, а не
// посреди выполнения.
func (j *JobDefinition) Validate() error {
	if len(j.Steps) == 0 {
		return ErrEmptySteps
	}

	seen := make(map[string]bool, len(j.Steps))
	for i := range j.Steps {
		step := &j.Steps[i]

		if step.ID == "" {
			return ErrEmptyStepID
		}
		if seen[step.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateStepID, step.ID)
		}
		seen[step.ID] = true

		if !knownEngines[step.Engine] {
			return fmt.Errorf("%w: step %s: %q", ErrUnknownEngine, step.ID, step.Engine)
		}
		if step.Request.URL == "" {
			return fmt.Errorf("%w: %s", ErrMissingURL, step.ID)
		}
		if step.Extract != "" && step.ExtractTo == "" {
			return fmt.Errorf("%w: %s", ErrExtractWithoutKey, step.ID)
		}
		if step.Auth != nil && !knownAuthModes[step.Auth.Mode] {
			return fmt.Errorf("%w: step %s: %q", ErrUnknownAuthMode, step.ID, step.Auth.Mode)
		}
	}

	return nil
}
