package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Топология Relay.
const (
	// ExchangeRuns — обменник событий запусков.
	ExchangeRuns = "relay.runs"

	// ExchangeDLQ — обменник мёртвых сообщений.
	ExchangeDLQ = "relay.dlq"

	// QueueRunsSubmit — очередь входящих запросов на запуск.
	QueueRunsSubmit = "runs.submit"

	// QueueRunsFinished — очередь событий о завершённых runs.
	QueueRunsFinished = "runs.finished"

	// QueueDLQ — очередь мёртвых сообщений.
	QueueDLQ = "dlq.runs"

	// RoutingSubmit — ключ маршрутизации запросов на запуск.
	RoutingSubmit = "submit"

	// RoutingFinished — ключ маршрутизации событий завершения.
	RoutingFinished = "finished"

	// RoutingDLQ — ключ маршрутизации DLQ.
	RoutingDLQ = "runs"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Операция идемпотентна.
func SetupTopology(conn *Connection) error {
	ch := conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	for _, ex := range []string{ExchangeRuns, ExchangeDLQ} {
		if err := ch.ExchangeDeclare(ex, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	// runs.submit получает DLQ: сообщение, которое не удалось принять
	// повторно, уходит в dlq.runs для ручного разбора.
	submitArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLQ,
		"x-dead-letter-routing-key": RoutingDLQ,
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		{QueueRunsSubmit, submitArgs},
		{QueueRunsFinished, nil},
		{QueueDLQ, nil},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := []struct {
		queue, key, exchange string
	}{
		{QueueRunsSubmit, RoutingSubmit, ExchangeRuns},
		{QueueRunsFinished, RoutingFinished, ExchangeRuns},
		{QueueDLQ, RoutingDLQ, ExchangeDLQ},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
