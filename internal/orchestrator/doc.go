// Package orchestrator управляет запусками шагов.
//
// Engine отвечает за:
//   - Загрузку Setting и пересоздание StepHandle
//   - Запуск шага: итерация кортежей, материализация задач, диспетчеризацию
//     с ограничением concurrency_limit
//   - Управление состоянием шага (Running/Paused/Stopped)
//   - Рассылку уведомлений и запись истории запусков
//
// Контроллер шага один: итератор и контекст меняет только он, задачи
// получают собственные копии контекста.
package orchestrator
