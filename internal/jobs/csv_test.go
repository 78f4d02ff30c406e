package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/harvester/internal/domain"
)

func TestCSVTask_AppendsRows(t *testing.T) {
	dir := t.TempDir()
	job, err := NewCSVJob(&domain.CSVJobSpec{
		Keys:     []string{"id", "name", "absent"},
		Sep:      ";",
		Filename: "{{report}}.csv",
		Output:   filepath.Join(dir, "reports"),
	})
	require.NoError(t, err)
	require.NoError(t, job.PreProcess())

	rows := []domain.Context{
		{"report": "daily", "id": "1", "name": "  alpha "},
		{"report": "daily", "id": "2", "name": "beta"},
	}
	for _, ctx := range rows {
		task, err := job.MakeTask(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, task.Run(context.Background()))
	}

	data, err := os.ReadFile(filepath.Join(dir, "reports", "daily.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1;alpha;\n2;beta;\n", string(data))
}

func TestCSVTask_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	dir := t.TempDir()
	job, err := NewCSVJob(&domain.CSVJobSpec{
		Keys:     []string{"n", "payload"},
		Sep:      ",",
		Filename: "all.csv",
		Output:   dir,
	})
	require.NoError(t, err)

	const n = 50
	payload := strings.Repeat("x", 4096)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		task, err := job.MakeTask(domain.Context{"n": fmt.Sprint(i), "payload": payload}, nil)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, task.Run(context.Background()))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "all.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, n)

	var got []string
	for _, line := range lines {
		id, rest, ok := strings.Cut(line, ",")
		require.True(t, ok)
		assert.Equal(t, payload, rest)
		got = append(got, id)
	}
	sort.Strings(got)

	var want []string
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprint(i))
	}
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestCSVTask_Describe(t *testing.T) {
	task := &CSVTask{SavePath: "out/a.csv"}
	assert.Equal(t, "out/a.csv", task.Describe())
}
