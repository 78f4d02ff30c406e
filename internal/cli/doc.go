// Package cli реализует инструмент командной строки harvester.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с harvester API.
// Работает через HTTP и websocket, не импортирует внутренние пакеты
// системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент на resty. Инкапсулирует запросы, распаковку ответов
// (DataResponse, ListResponse) и ошибок API в *APIError. Поток
// уведомлений открывается через OpenEvents (coder/websocket).
//
//	client := cli.NewClient("http://localhost:8080")
//	steps, err := client.ListSteps(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (go-pretty) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: harvester steps list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - setting: load, show
//   - steps: list, get, run, pause, resume, stop
//   - runs: list, get
//   - events
//
// Каждая группа создаётся через фабричную функцию (NewStepsCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
