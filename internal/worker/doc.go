// Package worker исполняет команды из очереди RabbitMQ.
//
// # Обзор
//
// Worker потребляет очередь harvester.commands и переводит сообщения
// в вызовы Engine:
//
//   - step.run      — Engine.RunStep в отдельной горутине
//   - step.state    — Engine.UpdateState
//   - setting.load  — Engine.Load
//
// Команда с неизвестным шагом или битым payload не повторяется и уходит
// в DLQ (mq.Permanent). Повторный step.run для выполняющегося шага
// подтверждается и пропускается.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Engine: eng,
//	    Conn:   mqConn,
//	    Logger: logger,
//	})
//	if err := w.Start(ctx); err != nil { ... }
//	defer w.Stop()
//
// Stop отменяет контекст запусков: выполняющиеся шаги перестают
// запускать задачи и дожидаются уже запущенных.
package worker
