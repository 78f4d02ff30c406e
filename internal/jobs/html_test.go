package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/harvester/internal/domain"
)

func TestHTMLJob_PreProcessRequired(t *testing.T) {
	job, err := NewHTMLJob(&domain.HTMLJobSpec{OutputTemplateFile: "missing.hbs"})
	require.NoError(t, err)

	_, err = job.MakeTask(domain.Context{}, nil)
	assert.ErrorIs(t, err, ErrNoTemplate)

	assert.Error(t, job.PreProcess())
}

func TestHTMLTask_Render(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "page.hbs")
	require.NoError(t, os.WriteFile(tmplPath,
		[]byte(`<h1>{{title}}</h1><p>{{UPDATE_DATE}}</p>{{{items}}}`), 0o644))

	job, err := NewHTMLJob(&domain.HTMLJobSpec{
		JSONMap: map[string][][2]string{
			"items": {
				{"name", "$.name"},
				{"photo", "$.img"},
				{"clip", "$.video"},
				{"created_date", "$.ts"},
				{"missing", "$.nope"},
			},
		},
		OutputTemplateFile: tmplPath,
		Filename:           "{{title}}.html",
		Output:             filepath.Join(dir, "out"),
	})
	require.NoError(t, err)
	require.NoError(t, job.PreProcess())

	ts := int64(1700000000000)
	ctx := domain.Context{
		"title":       "Shop",
		"UPDATE_DATE": "1700000000000",
		"items": `[
			{"name": "Tea & Co", "img": "https://cdn.example.com/a.PNG?w=100", "video": "v/clip.mp4", "ts": 1700000000000},
			{"name": "Plain"}
		]`,
	}
	task, err := job.MakeTask(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "out", "Shop.html"))
	require.NoError(t, err)

	when := time.UnixMilli(ts).Local().Format(DateLayout)
	want := `<h1>Shop</h1><p>` + when + `</p>` +
		`<div class="row">` +
		`<div class="name">Tea &amp; Co</div>` +
		`<img class="photo" src="https://cdn.example.com/a.PNG?w=100">` +
		`<video class="clip" src="v/clip.mp4" controls></video>` +
		`<div class="created_date">` + when + `</div>` +
		`</div>` +
		`<div class="row"><div class="name">Plain</div></div>`
	assert.Equal(t, want, string(data))

	// контекст задачи не меняется при рендеринге
	assert.Equal(t, "1700000000000", ctx["UPDATE_DATE"])
}

func TestHTMLTask_AlwaysRerenders(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "t.hbs")
	require.NoError(t, os.WriteFile(tmplPath, []byte(`v={{v}}`), 0o644))

	job, err := NewHTMLJob(&domain.HTMLJobSpec{
		OutputTemplateFile: tmplPath,
		Filename:           "page.html",
		Output:             dir,
	})
	require.NoError(t, err)
	require.NoError(t, job.PreProcess())

	for _, v := range []string{"1", "2"} {
		task, err := job.MakeTask(domain.Context{"v": v}, nil)
		require.NoError(t, err)
		require.NoError(t, task.Run(context.Background()))
	}

	data, err := os.ReadFile(filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "v=2", string(data))
}

func TestHTMLJob_TemplateCachedPerRun(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "t.hbs")
	require.NoError(t, os.WriteFile(tmplPath, []byte(`first`), 0o644))

	job, err := NewHTMLJob(&domain.HTMLJobSpec{OutputTemplateFile: tmplPath, Filename: "a.html", Output: dir})
	require.NoError(t, err)
	require.NoError(t, job.PreProcess())

	// изменение файла посреди запуска не видно
	require.NoError(t, os.WriteFile(tmplPath, []byte(`second`), 0o644))

	task, err := job.MakeTask(domain.Context{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", task.(*HTMLTask).Template)
}

func TestFragment(t *testing.T) {
	tests := []struct {
		label, value, want string
	}{
		{"pic", "a/b.jpeg", `<img class="pic" src="a/b.jpeg">`},
		{"song", "x.mp3", `<audio class="song" src="x.mp3" controls></audio>`},
		{"text", `<b>"hi"</b>`, `<div class="text">&lt;b&gt;&#34;hi&#34;&lt;/b&gt;</div>`},
		{`a"b`, "v", `<div class="a&#34;b">v</div>`},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, fragment(tt.label, tt.value))
		})
	}
}

func TestFromUnixMillis(t *testing.T) {
	assert.Equal(t, "not a number", fromUnixMillis("not a number"))
	assert.Equal(t, time.UnixMilli(0).Local().Format(DateLayout), fromUnixMillis("0"))
}
