package store

import "errors"

// Общие ошибки хранилища.
var (
	// ErrNotFound — документ не найден.
	ErrNotFound = errors.New("not found")

	// ErrConflict — запись нарушила бы инвариант
	// (регресс статуса, перезапись терминального исхода).
	ErrConflict = errors.New("conflict")

	// ErrUnavailable — хранилище недоступно.
	ErrUnavailable = errors.New("store unavailable")
)
