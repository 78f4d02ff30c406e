package setting

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/harvester/internal/domain"
)

const jsonDoc = `{
  "env": {"BASE": "${BASE_URL}", "TOKEN": "${HARVESTER_TEST_TOKEN}", "KEEP": "${NOT_DEFINED_ANYWHERE}"},
  "header": {},
  "steps": {
    "list": {
      "task_iters": [{"Pattern": {"name": "id", "glob_pattern": "in/*.json", "content_pattern": "$.items[*].id"}}],
      "job": {"ShellJob": {"shell": "echo", "args": ["{{id}}"]}},
      "concurrency_limit": 2
    }
  }
}`

const yamlDoc = `env:
  BASE: https://example.com
steps:
  pages:
    task_iters:
      - Range: {name: page, offset: "1", take: "3"}
    job:
      HttpJob:
        url: "{{BASE}}/p/{{page}}"
        method: GET
        filename: "{{page}}.html"
        output: out
    concurrency_limit: 3
    schedule: "*/5 * * * *"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatOf("a/setting.yaml"))
	assert.Equal(t, FormatYAML, FormatOf("SETTING.YML"))
	assert.Equal(t, FormatJSON, FormatOf("setting.json"))
	assert.Equal(t, FormatJSON, FormatOf("setting"))
}

func TestLoad_JSONWithDotenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "BASE_URL=https://shop.example.com\n")
	path := filepath.Join(dir, "setting.json")
	writeFile(t, path, jsonDoc)
	t.Setenv("HARVESTER_TEST_TOKEN", "secret")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", s.Env["BASE"])
	assert.Equal(t, "secret", s.Env["TOKEN"])
	assert.Equal(t, "${NOT_DEFINED_ANYWHERE}", s.Env["KEEP"])

	// JSONPath не тронут
	step := s.Steps["list"]
	assert.Equal(t, "list", step.Name)
	assert.Equal(t, "$.items[*].id", step.TaskIters[0].Pattern.ContentPattern)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setting.yaml")
	writeFile(t, path, yamlDoc)

	s, err := Load(path)
	require.NoError(t, err)

	step := s.Steps["pages"]
	assert.Equal(t, 3, step.ConcurrencyLimit)
	assert.Equal(t, "*/5 * * * *", step.Schedule)
	require.Equal(t, domain.JobHTTP, step.Job.Kind)
	assert.Equal(t, "{{BASE}}/p/{{page}}", step.Job.HTTP.URL)
	assert.Equal(t, domain.GeneratorRange, step.TaskIters[0].Kind)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, `{"steps": {}}`)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Parse([]byte("steps: [unclosed"), FormatYAML)
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	t.Setenv("HARVESTER_TEST_DIR", "/srv")
	out := Expand([]byte(`${A} $A ${HARVESTER_TEST_DIR} $$ $.x ${ A }`), map[string]string{"A": "1"})
	assert.Equal(t, `1 $A /srv $$ $.x ${ A }`, string(out))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setting.yaml")
	writeFile(t, path, yamlDoc)

	var (
		mu     sync.Mutex
		loaded []*domain.Setting
	)
	w, err := NewWatcher(path, 20*time.Millisecond, func(s *domain.Setting) error {
		mu.Lock()
		defer mu.Unlock()
		loaded = append(loaded, s)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// соседние файлы игнорируются
	writeFile(t, filepath.Join(dir, "other.txt"), "x")

	writeFile(t, path, yamlDoc+"\n# edited\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, loaded[0].Steps, "pages")
	mu.Unlock()
}

func TestWatcher_InvalidFileKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setting.json")
	writeFile(t, path, `{"steps": {}}`)

	calls := make(chan *domain.Setting, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(s *domain.Setting) error {
		calls <- s
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// невалидный документ не применяется
	writeFile(t, path, `{"steps": {}, "env": {}}`)
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, calls)

	writeFile(t, path, jsonDoc)
	select {
	case s := <-calls:
		assert.Contains(t, s.Steps, "list")
	case <-time.After(5 * time.Second):
		t.Fatal("setting was not reloaded")
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "setting.json"), 0, func(*domain.Setting) error { return nil }, nil)
	assert.Error(t, err)
}
