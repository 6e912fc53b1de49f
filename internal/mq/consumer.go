package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Relay/internal/dispatch"
)

// Submitter принимает запросы на запуск. Реализуется dispatcher.
type Submitter interface {
	Submit(ctx context.Context, req dispatch.RunRequest) (uuid.UUID, error)
}

// SubmitConsumer потребляет runs.submit и передаёт запросы dispatcher.
type SubmitConsumer struct {
	conn      *Connection
	submitter Submitter
	log       *slog.Logger
	prefetch  int
}

// NewSubmitConsumer создаёт consumer очереди запусков.
func NewSubmitConsumer(conn *Connection, submitter Submitter, log *slog.Logger, prefetch int) *SubmitConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &SubmitConsumer{
		conn:      conn,
		submitter: submitter,
		log:       log,
		prefetch:  prefetch,
	}
}

// Start потребляет сообщения до отмены ctx, переживая разрывы
// соединения через ReconnectNotify.
func (c *SubmitConsumer) Start(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.consume()
		if err != nil {
			c.log.Error("consumer не запущен", "queue", QueueRunsSubmit, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		c.log.Info("consumer запущен", "queue", QueueRunsSubmit)

		if err := c.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("канал доставки закрыт, ожидание переподключения")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
			}
		}
	}
}

func (c *SubmitConsumer) consume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(QueueRunsSubmit, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", QueueRunsSubmit, err)
	}
	return deliveries, nil
}

func (c *SubmitConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle разбирает и передаёт одно сообщение. Переполнение dispatcher
// возвращает сообщение в очередь; прочие ошибки уводят его в DLQ.
func (c *SubmitConsumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg SubmitMessage
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.log.Error("некорректное сообщение", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	runID, err := c.submitter.Submit(ctx, dispatch.RunRequest{
		JobID:          msg.JobID,
		Trigger:        msg.Trigger,
		IdempotencyKey: msg.IdempotencyKey,
	})
	switch {
	case err == nil:
		c.log.Info("run принят из очереди", "run_id", runID, "job_id", msg.JobID)
		raw.Ack(false)
	case errors.Is(err, dispatch.ErrOverloaded):
		// Перегрузка временная: сообщение вернётся позже.
		raw.Nack(false, true)
	default:
		c.log.Error("запрос на запуск отклонён", "job_id", msg.JobID, "error", err)
		raw.Nack(false, false)
	}
}
