package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Relay/internal/domain"
)

// SubmitMessage — запрос на запуск задания, приходящий из очереди.
type SubmitMessage struct {
	JobID          uuid.UUID      `json:"job_id"`
	Trigger        map[string]any `json:"trigger,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// FinishedMessage — событие о завершённом run.
type FinishedMessage struct {
	RunID      uuid.UUID        `json:"run_id"`
	JobID      uuid.UUID        `json:"job_id"`
	Status     domain.RunStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Publisher публикует события запусков.
type Publisher struct {
	conn *Connection
	log  *slog.Logger
}

// NewPublisher создаёт publisher.
func NewPublisher(conn *Connection, log *slog.Logger) *Publisher {
	return &Publisher{conn: conn, log: log}
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := p.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	err = ch.PublishWithContext(ctx, ExchangeRuns, routingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", ExchangeRuns, routingKey, err)
	}

	p.log.Debug("сообщение опубликовано", "routing_key", routingKey)
	return nil
}

// PublishSubmit публикует запрос на запуск задания.
func (p *Publisher) PublishSubmit(ctx context.Context, msg SubmitMessage) error {
	return p.publish(ctx, RoutingSubmit, msg)
}

// RunFinished публикует событие о терминальном переходе run.
// Реализует уведомитель dispatcher; ошибка публикации не влияет
// на судьбу run и только логируется.
func (p *Publisher) RunFinished(ctx context.Context, run *domain.Run) {
	msg := FinishedMessage{
		RunID:      run.ID,
		JobID:      run.JobID,
		Status:     run.Status,
		Error:      run.Error,
		FinishedAt: time.Now().UTC(),
	}
	if run.FinishedAt != nil {
		msg.FinishedAt = *run.FinishedAt
	}

	if err := p.publish(ctx, RoutingFinished, msg); err != nil {
		p.log.Warn("событие о завершении run не опубликовано",
			"run_id", run.ID, "error", err)
	}
}
