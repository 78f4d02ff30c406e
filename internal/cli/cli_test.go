package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI отвечает как harvester API на небольшой набор маршрутов.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /api/v1/steps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []StepResponse{
				{Name: "pages", State: "running", Job: "HttpJob", ConcurrencyLimit: 4, Schedule: "0 3 * * *"},
				{Name: "report", State: "paused", Running: true, Job: "CsvJob", ConcurrencyLimit: 1},
			},
			"total": 2,
		})
	})
	mux.HandleFunc("GET /api/v1/steps/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "Step not found"},
		})
	})
	mux.HandleFunc("PUT /api/v1/steps/{name}/state", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": StepResponse{Name: r.PathValue("name"), State: body["state"]},
		})
	})
	mux.HandleFunc("PUT /api/v1/setting", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/yaml" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"code": "BAD_REQUEST", "message": "want yaml"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": SettingLoadedResponse{Steps: []string{"pages"}, Version: 3},
		})
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pages", r.URL.Query().Get("step"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []RunResponse{{ID: "r1", Step: "pages", Status: "SUCCEEDED", Dispatched: 6}},
		})
	})
	mux.HandleFunc("POST /api/v1/steps/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"data": RunStartedResponse{Step: r.PathValue("name"), Status: "started"},
		})
	})
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		step := r.URL.Query().Get("step")
		for _, n := range []Notification{
			{Name: "status", Status: "start", Message: "Start Step " + step, Step: step},
			{Name: "progress", Message: "out/1.html", Step: step},
			{Name: "status", Status: "end", Message: "End Step " + step, Step: step},
		} {
			data, _ := json.Marshal(n)
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return root.ExecuteContext(ctx)
}

func newRoot(srv *httptest.Server, jsonMode bool) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL + "/") }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	root := &cobra.Command{Use: "harvester", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewSettingCmd(clientFn, outputFn),
		NewStepsCmd(clientFn, outputFn),
		NewRunsCmd(clientFn, outputFn),
		NewEventsCmd(clientFn, outputFn),
	)
	return root, &stdout, &stderr
}

func TestStepsList_Table(t *testing.T) {
	root, stdout, _ := newRoot(fakeAPI(t), false)

	err := execute(t, root, "steps", "list")
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "pages")
	assert.Contains(t, out, "0 3 * * *")
	assert.Contains(t, out, "paused")
}

func TestStepsList_JSON(t *testing.T) {
	root, stdout, _ := newRoot(fakeAPI(t), true)

	err := execute(t, root, "steps", "list")
	require.NoError(t, err)

	var steps []StepResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, "report", steps[1].Name)
	assert.True(t, steps[1].Running)
}

func TestStepsGet_APIError(t *testing.T) {
	root, _, _ := newRoot(fakeAPI(t), false)

	err := execute(t, root, "steps", "get", "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "NOT_FOUND: Step not found", err.Error())
}

func TestStepsStateCommands(t *testing.T) {
	for cmd, want := range map[string]string{"pause": "paused", "resume": "running", "stop": "stopped"} {
		t.Run(cmd, func(t *testing.T) {
			root, _, stderr := newRoot(fakeAPI(t), false)
			err := execute(t, root, "steps", cmd, "pages")
			require.NoError(t, err)
			assert.Equal(t, "Step pages is "+want+"\n", stderr.String())
		})
	}
}

func TestSettingLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setting.yml")
	require.NoError(t, os.WriteFile(path, []byte("steps: {}\n"), 0o644))

	root, _, stderr := newRoot(fakeAPI(t), false)
	err := execute(t, root, "setting", "load", path)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "Setting loaded: 1 step(s): pages (version 3)")
}

func TestRunsList(t *testing.T) {
	root, stdout, _ := newRoot(fakeAPI(t), false)

	err := execute(t, root, "runs", "list", "--step", "pages", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "SUCCEEDED")
	assert.Contains(t, stdout.String(), "r1")
}

func TestStepsRun_Follow(t *testing.T) {
	root, stdout, stderr := newRoot(fakeAPI(t), false)

	err := execute(t, root, "steps", "run", "pages", "--follow")
	require.NoError(t, err)

	assert.Equal(t, "Step pages started\n", stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[pages] status/start: Start Step pages")
	assert.Contains(t, lines[1], "[pages] progress: out/1.html")
	assert.Contains(t, lines[2], "[pages] status/end: End Step pages")
}

func TestEventStream_EOF(t *testing.T) {
	srv := fakeAPI(t)
	client := NewClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.OpenEvents(ctx, "s")
	require.NoError(t, err)
	defer stream.Close()

	var got []Notification
	for {
		n, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, n)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "progress", got[1].Name)
}
