package actor

import (
	"errors"
	"fmt"
)

// ErrCancelled — выполнение прервано запросом отмены.
var ErrCancelled = errors.New("run cancelled")

// TransportError — сбой исходящего HTTP-вызова шага. К этому классу
// относятся и таймауты: для политики retry они неотличимы от сетевого
// сбоя. Не-2xx ответ транспортной ошибкой не является.
type TransportError struct {
	StepID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("step %s transport: %v", e.StepID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError — шаг получил ответ вне диапазона 2xx.
type HTTPStatusError struct {
	StepID     string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("step %s: http status %d", e.StepID, e.StatusCode)
}
