package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shaiso/harvester/internal/domain"
)

// Ошибки jobs.
var (
	// ErrUnknownKind — вид job не зарегистрирован.
	ErrUnknownKind = errors.New("job kind not registered")

	// ErrNoTemplate — HtmlJob материализуется до PreProcess.
	ErrNoTemplate = errors.New("no output template")

	// ErrInvalidHeader — имя или значение заголовка недопустимо.
	ErrInvalidHeader = errors.New("invalid header")
)

// Job — описание работы с шаблонными полями.
//
// Job создаётся заново на каждый запуск шага: PreProcess вызывается
// ровно один раз до начала итерации, затем MakeTask — на каждый кортеж.
type Job interface {
	// Kind возвращает вид job.
	Kind() domain.JobKind

	// PreProcess подготавливает job к запуску (например, читает шаблон).
	// Ошибка фатальна для всего запуска.
	PreProcess() error

	// MakeTask рендерит все шаблонные поля против ctx.
	// ctx принадлежит задаче и не используется вызывающим после вызова.
	MakeTask(ctx domain.Context, env *Env) (Task, error)
}

// Task — job с отрендеренными полями, готовая к однократному выполнению.
type Task interface {
	// Kind возвращает вид job, породившей задачу.
	Kind() domain.JobKind

	// Run выполняет побочный эффект задачи.
	Run(ctx context.Context) error

	// Describe — сообщение для уведомления progress
	// (путь сохранения или командная строка).
	Describe() string
}

// Env — разделяемые между задачами шага ресурсы.
type Env struct {
	// Client — общий HTTP-клиент.
	Client *resty.Client

	// Header — глобальные заголовки (снимок на момент старта запуска).
	Header map[string]string
}

// NewEnv создаёт Env. Для nil client создаётся клиент по умолчанию.
func NewEnv(client *resty.Client, header map[string]string) *Env {
	if client == nil {
		client = NewClient(ClientConfig{})
	}
	if header == nil {
		header = make(map[string]string)
	}
	return &Env{Client: client, Header: header}
}

// ClientConfig — настройки HTTP-клиента.
type ClientConfig struct {
	// Timeout — таймаут одного запроса, 0 — без таймаута.
	Timeout time.Duration

	// UserAgent — заголовок User-Agent по умолчанию.
	UserAgent string
}

// NewClient создаёт общий resty-клиент.
func NewClient(cfg ClientConfig) *resty.Client {
	c := resty.New()
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return c
}

// TaskError — ошибка выполнения задачи.
type TaskError struct {
	Kind   domain.JobKind // вид задачи
	Target string         // путь сохранения или команда
	Err    error          // базовая ошибка
}

// Error реализует интерфейс error.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Target, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *TaskError) Unwrap() error {
	return e.Err
}
