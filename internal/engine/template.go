package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/aymerick/raymond"

	"github.com/shaiso/harvester/internal/domain"
)

// Шаблоны — Handlebars: {{name}} подставляет значение контекста с
// HTML-экранированием, {{{name}}} — без него. Отсутствующий ключ
// рендерится пустой строкой.
func init() {
	// upper — приводит к верхнему регистру
	raymond.RegisterHelper("upper", func(v any) string { return strings.ToUpper(raymond.Str(v)) })

	// lower — приводит к нижнему регистру
	raymond.RegisterHelper("lower", func(v any) string { return strings.ToLower(raymond.Str(v)) })

	// trim — удаляет пробелы по краям
	raymond.RegisterHelper("trim", func(v any) string { return strings.TrimSpace(raymond.Str(v)) })

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	raymond.RegisterHelper("default", func(val, def any) string {
		if s := raymond.Str(val); s != "" {
			return s
		}
		return raymond.Str(def)
	})

	// replace — заменяет подстроку
	raymond.RegisterHelper("replace", func(v, old, repl any) string {
		return strings.ReplaceAll(raymond.Str(v), raymond.Str(old), raymond.Str(repl))
	})

	// json — экранирует строку как JSON-литерал
	raymond.RegisterHelper("json", func(v any) raymond.SafeString {
		b, err := json.Marshal(raymond.Str(v))
		if err != nil {
			return ""
		}
		return raymond.SafeString(b)
	})
}

// cache — разобранные шаблоны по исходному тексту.
// Один и тот же шаблон рендерится для каждого кортежа шага.
var cache sync.Map

func parse(tmpl string) (*raymond.Template, error) {
	if t, ok := cache.Load(tmpl); ok {
		return t.(*raymond.Template), nil
	}

	t, err := raymond.Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	actual, _ := cache.LoadOrStore(tmpl, t)
	return actual.(*raymond.Template), nil
}

// Render рендерит строковый шаблон с контекстом.
//
//	Render("https://example.com/page/{{page}}", ctx)
func Render(tmpl string, ctx domain.Context) (string, error) {
	// Проверяем, содержит ли строка шаблонные выражения
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	if ctx == nil {
		ctx = domain.Context{}
	}

	out, err := t.Exec(map[string]string(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return out, nil
}

// RenderSafeDir рендерит шаблон каталога, предварительно очистив все
// значения контекста через SanitizeFilename. Сам шаблон не очищается,
// поэтому разделители пути в нём сохраняются.
func RenderSafeDir(tmpl string, ctx domain.Context) (string, error) {
	safe := make(domain.Context, len(ctx))
	for k, v := range ctx {
		safe[k] = SanitizeFilename(v)
	}
	return Render(tmpl, safe)
}

// RenderAll рендерит список шаблонов, останавливаясь на первой ошибке.
func RenderAll(tmpls []string, ctx domain.Context) ([]string, error) {
	out := make([]string, len(tmpls))
	for i, tmpl := range tmpls {
		v, err := Render(tmpl, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

const maxFilenameBytes = 255

// reservedNames — имена устройств Windows.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename удаляет символы, недопустимые в имени файла:
// разделители пути, / \ ? < > : * | ", управляющие символы,
// завершающие точки и пробелы. Имена "." и ".." и зарезервированные
// имена Windows превращаются в пустую строку.
func SanitizeFilename(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', '?', '<', '>', ':', '*', '|', '"':
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimRight(b.String(), ". ")
	if out == "" || reservedNames[strings.ToUpper(strings.SplitN(out, ".", 2)[0])] {
		return ""
	}

	if len(out) > maxFilenameBytes {
		out = out[:maxFilenameBytes]
		for !utf8.ValidString(out) {
			out = out[:len(out)-1]
		}
	}
	return out
}
