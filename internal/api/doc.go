// Package api — HTTP API для запуска и наблюдения runs.
// Все маршруты, кроме /healthz, требуют bearer-токен.
package api
