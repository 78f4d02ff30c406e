package jobs

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
	"github.com/shaiso/harvester/internal/telemetry"
)

// DateLayout — формат, в который переводятся метки времени в миллисекундах.
const DateLayout = "2006-01-02 15:04:05"

var (
	imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".webp": true, ".svg": true, ".bmp": true, ".avif": true}
	videoExt = map[string]bool{".mp4": true, ".webm": true, ".ogv": true, ".mov": true, ".m4v": true}
	audioExt = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".oga": true,
		".m4a": true, ".flac": true, ".aac": true}
)

// HTMLJob — отрендерить HTML-страницу по JSON-массивам из контекста.
//
// json_map: ключ контекста, содержащий JSON-массив → список пар
// (метка, путь). Для каждого элемента массива строится
// <div class="row">...</div>, и значение ключа заменяется этим HTML.
// Внешний шаблон должен вставлять его без экранирования: {{{items}}}.
type HTMLJob struct {
	spec     domain.HTMLJobSpec
	template string
	loaded   bool
}

// NewHTMLJob создаёт HTMLJob.
func NewHTMLJob(spec *domain.HTMLJobSpec) (*HTMLJob, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: empty HtmlJob", ErrUnknownKind)
	}
	return &HTMLJob{spec: *spec}, nil
}

// Kind возвращает вид job.
func (j *HTMLJob) Kind() domain.JobKind { return domain.JobHTML }

// PreProcess читает файл шаблона. Вызывается один раз на запуск.
func (j *HTMLJob) PreProcess() error {
	data, err := os.ReadFile(j.spec.OutputTemplateFile)
	if err != nil {
		return fmt.Errorf("read output template: %w", err)
	}
	j.template = string(data)
	j.loaded = true
	return nil
}

// MakeTask рендерит путь сохранения; контекст целиком уходит в задачу.
func (j *HTMLJob) MakeTask(ctx domain.Context, _ *Env) (Task, error) {
	if !j.loaded {
		return nil, ErrNoTemplate
	}

	folder, savePath, err := outputPath(j.spec.Output, j.spec.Filename, ctx)
	if err != nil {
		return nil, err
	}

	return &HTMLTask{
		Context:  ctx,
		Template: j.template,
		JSONMap:  j.spec.JSONMap,
		Folder:   folder,
		SavePath: savePath,
	}, nil
}

// HTMLTask — рендеринг одной страницы.
type HTMLTask struct {
	Context  domain.Context
	Template string
	JSONMap  map[string][][2]string
	Folder   string
	SavePath string
}

// Kind возвращает вид задачи.
func (t *HTMLTask) Kind() domain.JobKind { return domain.JobHTML }

// Describe возвращает путь сохранения.
func (t *HTMLTask) Describe() string { return t.SavePath }

// Run всегда перерисовывает страницу: существующий файл удаляется.
func (t *HTMLTask) Run(ctx context.Context) error {
	logger := telemetry.FromContext(ctx)

	if err := ensureDir(t.Folder); err != nil {
		return t.fail(err)
	}
	for _, p := range []string{t.SavePath, t.SavePath + tmpSuffix} {
		if err := removeIfExists(p); err != nil {
			logger.Warn("remove previous output", "path", p, "error", err)
		}
	}

	env := t.Context.Clone()

	keys := make([]string, 0, len(t.JSONMap))
	for k := range t.JSONMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw, ok := env[key]
		if !ok {
			continue
		}
		doc, err := engine.ParseJSON([]byte(raw))
		if err != nil {
			continue
		}
		items, ok := doc.([]any)
		if !ok {
			continue
		}
		env[key] = renderRows(items, t.JSONMap[key])
	}

	for k, v := range env {
		if isDateKey(k) {
			env[k] = fromUnixMillis(v)
		}
	}

	page, err := engine.Render(t.Template, env)
	if err != nil {
		return t.fail(err)
	}
	if err := writeAtomic(t.SavePath, []byte(page)); err != nil {
		return t.fail(err)
	}
	return nil
}

func (t *HTMLTask) fail(err error) error {
	return &TaskError{Kind: domain.JobHTML, Target: t.SavePath, Err: err}
}

// renderRows строит по строке на элемент массива.
func renderRows(items []any, fields [][2]string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(`<div class="row">`)
		for _, f := range fields {
			label, expr := f[0], f[1]
			v, err := engine.Value(item, expr)
			if err != nil {
				continue
			}
			if isDateKey(label) {
				v = fromUnixMillis(v)
			}
			b.WriteString(fragment(label, v))
		}
		b.WriteString(`</div>`)
	}
	return b.String()
}

// fragment оборачивает значение в тег по расширению файла.
func fragment(label, value string) string {
	class := html.EscapeString(label)
	v := html.EscapeString(value)

	switch ext := mediaExt(value); {
	case imageExt[ext]:
		return `<img class="` + class + `" src="` + v + `">`
	case videoExt[ext]:
		return `<video class="` + class + `" src="` + v + `" controls></video>`
	case audioExt[ext]:
		return `<audio class="` + class + `" src="` + v + `" controls></audio>`
	default:
		return `<div class="` + class + `">` + v + `</div>`
	}
}

// mediaExt возвращает расширение пути значения без query и fragment.
func mediaExt(value string) string {
	p := value
	if u, err := url.Parse(value); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

func isDateKey(key string) bool {
	return strings.Contains(strings.ToUpper(key), "DATE")
}

// fromUnixMillis переводит миллисекунды Unix в локальное время.
// Нечисловые значения возвращаются без изменений.
func fromUnixMillis(s string) string {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return s
	}
	return time.UnixMilli(ms).Local().Format(DateLayout)
}
