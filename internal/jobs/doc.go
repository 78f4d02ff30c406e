// Package jobs содержит виды работы, которую шаг выполняет для каждого кортежа.
//
// # Обзор
//
// Job — описание работы с шаблонными полями. Task — та же работа,
// отрендеренная против контекста одного кортежа:
//
//	job, err := jobs.DefaultRegistry().New(step.Job)
//	if err := job.PreProcess(); err != nil {
//	    // фатально для запуска
//	}
//	task, err := job.MakeTask(tuple.Context, env)
//	err = task.Run(ctx)
//
// # Виды
//
//   - HttpJob (http.go)   — скачать URL; пропуск, если файл уже есть
//   - HtmlJob (html.go)   — отрендерить страницу; всегда перезаписывает
//   - CsvJob (csv.go)     — дописать строку в общий файл
//   - ShellJob (shell.go) — запустить команду
//
// # Файлы
//
// Каталог вывода рендерится против контекста с очищенными значениями,
// имя файла очищается после рендеринга. HTTP и HTML пишут через
// <path>.tmp и rename, поэтому по итоговому пути никогда не лежит
// недописанный файл.
package jobs
