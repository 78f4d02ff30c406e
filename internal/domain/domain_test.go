package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepState(t *testing.T) {
	tests := []struct {
		in   string
		want StepState
	}{
		{"0", StepRunning},
		{"running", StepRunning},
		{" Resume ", StepRunning},
		{"1", StepPaused},
		{"PAUSED", StepPaused},
		{"2", StepStopped},
		{"stop", StepStopped},
	}
	for _, tt := range tests {
		got, err := ParseStepState(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStepState("3")
	assert.Error(t, err)
	assert.False(t, StepState(3).Valid())
	assert.Equal(t, "unknown(3)", StepState(3).String())
}

func TestStepState_UnmarshalJSON(t *testing.T) {
	var body struct {
		State StepState `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"state": 1}`), &body))
	assert.Equal(t, StepPaused, body.State)

	require.NoError(t, json.Unmarshal([]byte(`{"state": "stopped"}`), &body))
	assert.Equal(t, StepStopped, body.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state": "sideways"}`), &body))
}

func TestSetting_DocumentShape(t *testing.T) {
	doc := `{
  "env": {"BASE": "https://example.com"},
  "header": {"User-Agent": "harvester"},
  "steps": {
    "pages": {
      "name": "pages",
      "task_iters": [
        {"List": {"name": "lang", "val": ["en", "ja"]}},
        {"Range": {"name": "page", "offset": "0", "take": "3"}}
      ],
      "job": {"HttpJob": {"url": "{{BASE}}/{{lang}}/{{page}}", "method": "GET", "header": {}, "filename": "{{page}}.html", "output": "out/{{lang}}"}},
      "concurrency_limit": 2
    }
  }
}`
	var s Setting
	require.NoError(t, json.Unmarshal([]byte(doc), &s))

	step := s.Steps["pages"]
	require.Len(t, step.TaskIters, 2)
	assert.Equal(t, GeneratorVec, step.TaskIters[0].Kind)
	assert.Equal(t, []string{"en", "ja"}, step.TaskIters[0].Vec.Val)
	assert.Equal(t, []string{"page"}, step.TaskIters[1].Names())
	assert.Equal(t, JobHTTP, step.Job.Kind)
	assert.Equal(t, "out/{{lang}}", step.Job.HTTP.Output)
	assert.Equal(t, []string{"pages"}, s.StepNames())

	// сериализация сохраняет форму {"Kind": {...}}
	out, err := json.Marshal(step.TaskIters[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"Range": {"name": "page", "offset": "0", "take": "3"}}`, string(out))
}

func TestSetting_MalformedVariants(t *testing.T) {
	var g GeneratorSpec
	err := json.Unmarshal([]byte(`{"Spiral": {}}`), &g)
	assert.True(t, errors.Is(err, ErrUnknownGenerator))

	err = json.Unmarshal([]byte(`{"Vec": {}, "Range": {}}`), &g)
	assert.True(t, errors.Is(err, ErrMalformedVariant))

	var j JobSpec
	err = json.Unmarshal([]byte(`{"FtpJob": {}}`), &j)
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestGeneratorSpec_GlobJSONPatternNames(t *testing.T) {
	g := GeneratorSpec{
		Kind: GeneratorGlobJSONPattern,
		GlobJSONPattern: &GlobJSONPatternGenerator{
			EnvPattern: map[string]string{"title": "$.title", "id": "$.id"},
		},
	}
	assert.Equal(t, []string{"id", "title"}, g.Names())
}

func TestStepRun_Lifecycle(t *testing.T) {
	run := NewStepRun("pages")
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.False(t, run.IsFinished())
	assert.Zero(t, run.Duration())

	run.MarkFailed("make task: boom")
	assert.True(t, run.IsFinished())
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "make task: boom", run.Error)
	require.NotNil(t, run.FinishedAt)
	assert.GreaterOrEqual(t, run.Duration(), time.Duration(0))
}
