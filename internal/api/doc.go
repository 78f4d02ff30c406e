// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (engine, хранилища, broadcaster, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (request id, logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - setting_handler.go — обработчики для /setting
//   - step_handler.go    — обработчики для /steps
//   - run_handler.go     — обработчики для /runs (история запусков)
//   - events_handler.go  — websocket-поток уведомлений /events
//
// API предоставляет REST endpoints для загрузки Setting, запуска шагов
// и управления их состоянием.
package api
