// Package scheduler запускает шаги по расписанию.
//
// Scheduler на каждом тике сверяет cron-выражения (поле schedule)
// загруженных шагов с текущим временем и запускает те, чей срок
// наступил. Шаг, который ещё выполняется, пропускает срабатывание.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Engine: eng,
//	    Logger: logger,
//	})
//	go sched.Run(ctx, time.Second)
//
// Первое срабатывание считается от момента, когда шаг впервые увиден:
// загрузка Setting не запускает просроченные шаги.
package scheduler
