// Package telemetry содержит настройку structured logging (slog)
// и prometheus метрики, общие для всех компонентов Relay.
package telemetry
