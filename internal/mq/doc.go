// Package mq — транспорт срабатываний поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и publisher confirms
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация срабатываний и ручных запросов
//   - consumer.go   — потребление с ack/nack и DLQ
//
// Типы сообщений:
//   - job.trigger        — срабатывание задачи, MessageId = ключ идемпотентности
//   - job.manual_trigger — запрос оператора на ручной запуск
//
// Exchanges:
//   - cronwheel.triggers — срабатывания и ручные запросы
//   - cronwheel.dlq      — dead letter queue
package mq
