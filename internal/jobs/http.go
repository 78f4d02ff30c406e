package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"dario.cat/mergo"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/http/httpguts"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
	"github.com/shaiso/harvester/internal/telemetry"
)

// HTTPJob — скачать URL в файл.
//
// Шаблонные поля: url, значения header, filename, output.
//
//	{"HttpJob": {
//	    "url": "{{BASE}}/api/items?page={{page}}",
//	    "method": "GET",
//	    "header": {"Authorization": "Bearer {{TOKEN}}"},
//	    "filename": "items-{{page}}.json",
//	    "output": "data/items"
//	}}
type HTTPJob struct {
	spec domain.HTTPJobSpec
}

// NewHTTPJob создаёт HTTPJob.
func NewHTTPJob(spec *domain.HTTPJobSpec) (*HTTPJob, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: empty HttpJob", ErrUnknownKind)
	}
	return &HTTPJob{spec: *spec}, nil
}

// Kind возвращает вид job.
func (j *HTTPJob) Kind() domain.JobKind { return domain.JobHTTP }

// PreProcess ничего не делает.
func (j *HTTPJob) PreProcess() error { return nil }

// MakeTask рендерит запрос и путь сохранения.
//
// Заголовки: сначала глобальные, затем заголовки job (job побеждает
// при совпадении имени). Каждое значение — шаблон.
func (j *HTTPJob) MakeTask(ctx domain.Context, env *Env) (Task, error) {
	url, err := engine.Render(j.spec.URL, ctx)
	if err != nil {
		return nil, err
	}

	merged := canonicalHeaders(env.Header)
	if err := mergo.Merge(&merged, canonicalHeaders(j.spec.Header), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge headers: %w", err)
	}

	header := make(map[string]string, len(merged))
	for name, tmpl := range merged {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
		}
		v, err := engine.Render(tmpl, ctx)
		if err != nil {
			return nil, err
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return nil, fmt.Errorf("%w: value of %q", ErrInvalidHeader, name)
		}
		header[name] = v
	}

	folder, savePath, err := outputPath(j.spec.Output, j.spec.Filename, ctx)
	if err != nil {
		return nil, err
	}

	return &HTTPTask{
		client:   env.Client,
		URL:      url,
		Method:   j.spec.Method,
		Header:   header,
		Folder:   folder,
		SavePath: savePath,
	}, nil
}

// canonicalHeaders приводит имена заголовков к каноническому виду,
// чтобы "user-agent" и "User-Agent" считались одним заголовком.
func canonicalHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

// HTTPTask — запрос с отрендеренными полями.
type HTTPTask struct {
	client *resty.Client

	URL      string
	Method   string
	Header   map[string]string
	Folder   string
	SavePath string
}

// Kind возвращает вид задачи.
func (t *HTTPTask) Kind() domain.JobKind { return domain.JobHTTP }

// Describe возвращает путь сохранения.
func (t *HTTPTask) Describe() string { return t.SavePath }

// Run скачивает ответ в SavePath.
//
// Если SavePath уже существует, запрос не выполняется. Ответ с
// не-2xx статусом логируется, файл не пишется, ошибка не возвращается.
// application/json перекодируется в UTF-8 и форматируется; остальное
// пишется как есть. Запись — через .tmp и rename.
func (t *HTTPTask) Run(ctx context.Context) error {
	logger := telemetry.FromContext(ctx)

	if err := ensureDir(t.Folder); err != nil {
		return t.fail(err)
	}
	if exists(t.SavePath) {
		logger.Debug("output exists, skipping", "path", t.SavePath)
		return nil
	}
	if err := removeIfExists(t.SavePath + tmpSuffix); err != nil {
		logger.Warn("remove stale tmp file", "path", t.SavePath+tmpSuffix, "error", err)
	}

	method := resty.MethodGet
	if t.Method == resty.MethodPost {
		method = resty.MethodPost
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(t.Header).
		Execute(method, t.URL)
	if err != nil {
		return t.fail(fmt.Errorf("http request failed: %w", err))
	}

	if !resp.IsSuccess() {
		logger.Warn("http request returned non-success status",
			"url", t.URL,
			"status", resp.StatusCode(),
			"path", t.SavePath,
		)
		return nil
	}

	body := resp.Body()
	mediaType, params, _ := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if mediaType == "application/json" {
		body, err = prettyJSON(decode(params["charset"], body))
		if err != nil {
			return t.fail(fmt.Errorf("parse json response: %w", err))
		}
	}

	if err := writeAtomic(t.SavePath, body); err != nil {
		return t.fail(err)
	}

	logger.Debug("saved", "url", t.URL, "path", t.SavePath, "bytes", len(body))
	return nil
}

func (t *HTTPTask) fail(err error) error {
	return &TaskError{Kind: domain.JobHTTP, Target: t.SavePath, Err: err}
}

// prettyJSON форматирует JSON с отступом в два пробела.
// Числа сохраняются без потери точности, HTML-символы не экранируются.
func prettyJSON(text string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
