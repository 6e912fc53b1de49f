// Package mq — слой RabbitMQ: запросы на запуск приходят из очереди
// runs.submit, события о завершённых runs публикуются в runs.finished.
// Worker работает и без MQ, принимая запуски только через HTTP API.
package mq
