package jobs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shaiso/harvester/internal/domain"
)

// CSVJob — дописать строку в общий файл.
//
// Файл один на весь запуск шага и растёт с каждой задачей. Порядок строк
// между параллельными задачами не гарантируется; если он важен,
// concurrency_limit шага должен быть 1.
type CSVJob struct {
	spec domain.CSVJobSpec
}

// NewCSVJob создаёт CSVJob.
func NewCSVJob(spec *domain.CSVJobSpec) (*CSVJob, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: empty CsvJob", ErrUnknownKind)
	}
	return &CSVJob{spec: *spec}, nil
}

// Kind возвращает вид job.
func (j *CSVJob) Kind() domain.JobKind { return domain.JobCSV }

// PreProcess ничего не делает.
func (j *CSVJob) PreProcess() error { return nil }

// MakeTask рендерит путь файла.
func (j *CSVJob) MakeTask(ctx domain.Context, _ *Env) (Task, error) {
	folder, savePath, err := outputPath(j.spec.Output, j.spec.Filename, ctx)
	if err != nil {
		return nil, err
	}
	return &CSVTask{
		Context:  ctx,
		Keys:     j.spec.Keys,
		Sep:      j.spec.Sep,
		Folder:   folder,
		SavePath: savePath,
	}, nil
}

// CSVTask — одна строка для дописывания.
type CSVTask struct {
	Context  domain.Context
	Keys     []string
	Sep      string
	Folder   string
	SavePath string
}

// Kind возвращает вид задачи.
func (t *CSVTask) Kind() domain.JobKind { return domain.JobCSV }

// Describe возвращает путь файла.
func (t *CSVTask) Describe() string { return t.SavePath }

// Row собирает строку: значения ключей по порядку, обрезанные,
// отсутствующие — пустые.
func (t *CSVTask) Row() string {
	cols := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		cols[i] = strings.TrimSpace(t.Context[k])
	}
	return strings.Join(cols, t.Sep)
}

// fileLocks — блокировки по пути, чтобы строки не перемешивались.
var fileLocks sync.Map

func lockFile(path string) func() {
	m, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Run дописывает строку в файл (создаёт его при необходимости).
func (t *CSVTask) Run(context.Context) error {
	if err := ensureDir(t.Folder); err != nil {
		return t.fail(err)
	}

	unlock := lockFile(t.SavePath)
	defer unlock()

	f, err := os.OpenFile(t.SavePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return t.fail(err)
	}
	if _, err := f.WriteString(t.Row() + "\n"); err != nil {
		f.Close()
		return t.fail(err)
	}
	if err := f.Close(); err != nil {
		return t.fail(err)
	}
	return nil
}

func (t *CSVTask) fail(err error) error {
	return &TaskError{Kind: domain.JobCSV, Target: t.SavePath, Err: err}
}
