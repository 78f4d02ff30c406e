// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, сигнал Ready)
//   - topology.go   — Topology: exchanges, queues, bindings
//   - publisher.go  — конверт Message и публикация событий
//   - consumer.go   — потребление команд, Decide (ack/requeue/DLQ)
//   - events.go     — публикация уведомлений шагов как Notifier
//
// Команды (harvester.commands):
//   - step.run      — запустить шаг
//   - step.state    — сменить состояние шага
//   - setting.load  — загрузить Setting
//
// События (harvester.events, topic): step.<шаг>.<status|progress|error>.
package mq
