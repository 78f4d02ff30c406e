package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Setting — загружаемый документ конфигурации.
//
// Формат совпадает с тем, что сохраняет настольное приложение:
//
//	{
//	  "env":    {"BASE": "https://example.com"},
//	  "header": {"User-Agent": "harvester"},
//	  "steps":  {"pages": {"name": "pages", "task_iters": [...], "job": {...}, "concurrency_limit": 4}}
//	}
type Setting struct {
	// Env — глобальные переменные, затравка контекста каждого шага.
	Env map[string]string `json:"env"`

	// Header — глобальные HTTP-заголовки для HttpJob.
	Header map[string]string `json:"header"`

	// Steps — таблица шагов по имени.
	Steps map[string]Step `json:"steps"`
}

// StepNames возвращает имена шагов в алфавитном порядке.
func (s *Setting) StepNames() []string {
	names := make([]string, 0, len(s.Steps))
	for name := range s.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Step — именованный шаг: генераторы значений, описание работы и лимит параллельности.
type Step struct {
	// Name — имя шага.
	Name string `json:"name"`

	// TaskIters — упорядоченный список генераторов.
	// Генератор k может ссылаться в шаблонах на значения генераторов 0..k-1.
	TaskIters []GeneratorSpec `json:"task_iters"`

	// Job — что делать для каждого кортежа.
	Job JobSpec `json:"job"`

	// ConcurrencyLimit — максимум одновременно выполняемых задач.
	ConcurrencyLimit int `json:"concurrency_limit"`

	// Schedule — cron-выражение (5 полей) для запуска по расписанию.
	Schedule string `json:"schedule,omitempty"`

	// RateLimit — максимум запусков задач в секунду, 0 — без ограничения.
	RateLimit float64 `json:"rate_limit,omitempty"`
}

// GeneratorKind — вид генератора значений.
type GeneratorKind string

const (
	GeneratorVec                  GeneratorKind = "Vec"
	GeneratorRange                GeneratorKind = "Range"
	GeneratorPattern              GeneratorKind = "Pattern"
	GeneratorRangePattern         GeneratorKind = "RangePattern"
	GeneratorGlobJSONPattern      GeneratorKind = "GlobJsonPattern"
	GeneratorGlobJSONRangePattern GeneratorKind = "GlobJsonRangePattern"
)

// VecGenerator — фиксированный список значений.
type VecGenerator struct {
	Name string   `json:"name"`
	Val  []string `json:"val"`
}

// RangeGenerator — числовой диапазон offset .. offset+take-1.
type RangeGenerator struct {
	Name   string `json:"name"`
	Offset string `json:"offset"`
	Take   string `json:"take"`
}

// PatternGenerator — значения JSONPath из файлов по glob.
type PatternGenerator struct {
	Name           string `json:"name"`
	GlobPattern    string `json:"glob_pattern"`
	ContentPattern string `json:"content_pattern"`
}

// RangePatternGenerator — диапазон, границы которого берутся из JSON-файла.
type RangePatternGenerator struct {
	Name        string `json:"name"`
	GlobPattern string `json:"glob_pattern"`
	Offset      string `json:"offset"`
	Take        string `json:"take"`
}

// GlobJSONPatternGenerator — по одному набору значений на каждый элемент item_pattern.
type GlobJSONPatternGenerator struct {
	GlobPattern string            `json:"glob_pattern"`
	ItemPattern string            `json:"item_pattern"`
	EnvPattern  map[string]string `json:"env_pattern"`
}

// GlobJSONRangePatternGenerator — диапазон из первого файла, найденного по glob.
type GlobJSONRangePatternGenerator struct {
	Name          string `json:"name"`
	FilePattern   string `json:"file_pattern"`
	OffsetPattern string `json:"offset_pattern"`
	TakePattern   string `json:"take_pattern"`
}

// GeneratorSpec — один из видов генераторов.
//
// В JSON записывается как объект с единственным ключом-видом:
//
//	{"Range": {"name": "page", "offset": "0", "take": "10"}}
//
// Заполнено ровно одно поле, соответствующее Kind.
type GeneratorSpec struct {
	Kind GeneratorKind

	Vec                  *VecGenerator
	Range                *RangeGenerator
	Pattern              *PatternGenerator
	RangePattern         *RangePatternGenerator
	GlobJSONPattern      *GlobJSONPatternGenerator
	GlobJSONRangePattern *GlobJSONRangePatternGenerator
}

// NewRange — удобный конструктор для Range-генератора.
func NewRange(name, offset, take string) GeneratorSpec {
	return GeneratorSpec{
		Kind:  GeneratorRange,
		Range: &RangeGenerator{Name: name, Offset: offset, Take: take},
	}
}

// NewVec — удобный конструктор для Vec-генератора.
func NewVec(name string, values ...string) GeneratorSpec {
	return GeneratorSpec{
		Kind: GeneratorVec,
		Vec:  &VecGenerator{Name: name, Val: values},
	}
}

// Names возвращает ключи контекста, которые пишет генератор.
func (g GeneratorSpec) Names() []string {
	switch g.Kind {
	case GeneratorVec:
		return []string{g.Vec.Name}
	case GeneratorRange:
		return []string{g.Range.Name}
	case GeneratorPattern:
		return []string{g.Pattern.Name}
	case GeneratorRangePattern:
		return []string{g.RangePattern.Name}
	case GeneratorGlobJSONPattern:
		names := make([]string, 0, len(g.GlobJSONPattern.EnvPattern))
		for name := range g.GlobJSONPattern.EnvPattern {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	case GeneratorGlobJSONRangePattern:
		return []string{g.GlobJSONRangePattern.Name}
	default:
		return nil
	}
}

// MarshalJSON реализует json.Marshaler.
func (g GeneratorSpec) MarshalJSON() ([]byte, error) {
	var body any
	switch g.Kind {
	case GeneratorVec:
		body = g.Vec
	case GeneratorRange:
		body = g.Range
	case GeneratorPattern:
		body = g.Pattern
	case GeneratorRangePattern:
		body = g.RangePattern
	case GeneratorGlobJSONPattern:
		body = g.GlobJSONPattern
	case GeneratorGlobJSONRangePattern:
		body = g.GlobJSONRangePattern
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, g.Kind)
	}
	return json.Marshal(map[GeneratorKind]any{g.Kind: body})
}

// UnmarshalJSON реализует json.Unmarshaler.
func (g *GeneratorSpec) UnmarshalJSON(data []byte) error {
	kind, raw, err := singleKey(data)
	if err != nil {
		return fmt.Errorf("task_iter: %w", err)
	}

	out := GeneratorSpec{Kind: GeneratorKind(kind)}
	switch out.Kind {
	case GeneratorVec, "List":
		out.Kind = GeneratorVec
		out.Vec = &VecGenerator{}
		err = json.Unmarshal(raw, out.Vec)
	case GeneratorRange:
		out.Range = &RangeGenerator{}
		err = json.Unmarshal(raw, out.Range)
	case GeneratorPattern:
		out.Pattern = &PatternGenerator{}
		err = json.Unmarshal(raw, out.Pattern)
	case GeneratorRangePattern:
		out.RangePattern = &RangePatternGenerator{}
		err = json.Unmarshal(raw, out.RangePattern)
	case GeneratorGlobJSONPattern:
		out.GlobJSONPattern = &GlobJSONPatternGenerator{}
		err = json.Unmarshal(raw, out.GlobJSONPattern)
	case GeneratorGlobJSONRangePattern:
		out.GlobJSONRangePattern = &GlobJSONRangePatternGenerator{}
		err = json.Unmarshal(raw, out.GlobJSONRangePattern)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGenerator, kind)
	}
	if err != nil {
		return fmt.Errorf("task_iter %s: %w", kind, err)
	}

	*g = out
	return nil
}

// JobKind — вид работы.
type JobKind string

const (
	JobHTTP  JobKind = "HttpJob"
	JobHTML  JobKind = "HtmlJob"
	JobCSV   JobKind = "CsvJob"
	JobShell JobKind = "ShellJob"
)

// HTTPJobSpec — скачать URL в файл.
type HTTPJobSpec struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Header   map[string]string `json:"header"`
	Filename string            `json:"filename"`
	Output   string            `json:"output"`
}

// HTMLJobSpec — отрендерить HTML-шаблон по JSON-массивам из контекста.
type HTMLJobSpec struct {
	// JSONMap — ключ контекста → список пар (метка, JSONPath).
	JSONMap            map[string][][2]string `json:"json_map"`
	OutputTemplateFile string                 `json:"output_template_file"`
	Filename           string                 `json:"filename"`
	Output             string                 `json:"output"`
}

// CSVJobSpec — дописать строку в общий CSV-файл.
type CSVJobSpec struct {
	Keys     []string `json:"keys"`
	Sep      string   `json:"sep"`
	Filename string   `json:"filename"`
	Output   string   `json:"output"`
}

// ShellJobSpec — запустить внешнюю команду.
type ShellJobSpec struct {
	Shell      string   `json:"shell"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
	Encoding   string   `json:"encoding"`
}

// JobSpec — один из видов работы, записывается как {"HttpJob": {...}}.
type JobSpec struct {
	Kind JobKind

	HTTP  *HTTPJobSpec
	HTML  *HTMLJobSpec
	CSV   *CSVJobSpec
	Shell *ShellJobSpec
}

// MarshalJSON реализует json.Marshaler.
func (j JobSpec) MarshalJSON() ([]byte, error) {
	var body any
	switch j.Kind {
	case JobHTTP:
		body = j.HTTP
	case JobHTML:
		body = j.HTML
	case JobCSV:
		body = j.CSV
	case JobShell:
		body = j.Shell
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, j.Kind)
	}
	return json.Marshal(map[JobKind]any{j.Kind: body})
}

// UnmarshalJSON реализует json.Unmarshaler.
func (j *JobSpec) UnmarshalJSON(data []byte) error {
	kind, raw, err := singleKey(data)
	if err != nil {
		return fmt.Errorf("job: %w", err)
	}

	out := JobSpec{Kind: JobKind(kind)}
	switch out.Kind {
	case JobHTTP:
		out.HTTP = &HTTPJobSpec{}
		err = json.Unmarshal(raw, out.HTTP)
	case JobHTML:
		out.HTML = &HTMLJobSpec{}
		err = json.Unmarshal(raw, out.HTML)
	case JobCSV:
		out.CSV = &CSVJobSpec{}
		err = json.Unmarshal(raw, out.CSV)
	case JobShell:
		out.Shell = &ShellJobSpec{}
		err = json.Unmarshal(raw, out.Shell)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, kind)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", kind, err)
	}

	*j = out
	return nil
}

// singleKey разбирает объект вида {"Kind": {...}}.
func singleKey(data []byte) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one kind key, got %d", ErrMalformedVariant, len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}
