package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/orchestrator"
	"github.com/shaiso/harvester/internal/repo"
)

func settingDoc(dir string) string {
	return fmt.Sprintf(`{
  "env": {"PREFIX": "row"},
  "header": {},
  "steps": {
    "export": {
      "task_iters": [{"Vec": {"name": "id", "val": ["a", "b", "c"]}}],
      "job": {"CsvJob": {"keys": ["PREFIX", "id"], "sep": ",", "filename": "out.csv", "output": %q}},
      "concurrency_limit": 1
    }
  }
}`, dir)
}

type memRuns struct {
	runs []domain.StepRun
}

func (m *memRuns) List(_ context.Context, f repo.StepRunFilter) ([]domain.StepRun, error) {
	var out []domain.StepRun
	for _, r := range m.runs {
		if f.Step == "" || r.Step == f.Step {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.StepRun, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repo.ErrNotFound
}

type memSettings struct {
	saved []*domain.Setting
}

func (m *memSettings) Save(_ context.Context, s *domain.Setting) (int64, error) {
	m.saved = append(m.saved, s)
	return int64(len(m.saved)), nil
}

type testServer struct {
	handler *Handler
	engine  *orchestrator.Engine
	mux     *http.ServeMux
	dir     string
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	eng := orchestrator.New(orchestrator.Config{})
	cfg.Engine = eng
	h := NewHandler(cfg)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testServer{handler: h, engine: eng, mux: mux, dir: t.TempDir()}
}

func (s *testServer) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) load(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/v1/setting", "application/json", settingDoc(s.dir))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestSetting_LoadAndGet(t *testing.T) {
	store := &memSettings{}
	s := newTestServer(t, Config{Settings: store})

	rec := s.do(t, http.MethodGet, "/api/v1/setting", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/setting", "application/json", settingDoc(s.dir))
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded SettingLoadedResponse
	decodeData(t, rec, &loaded)
	assert.Equal(t, []string{"export"}, loaded.Steps)
	assert.Equal(t, int64(1), loaded.Version)
	require.Len(t, store.saved, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/setting", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Setting
	decodeData(t, rec, &got)
	assert.Equal(t, "row", got.Env["PREFIX"])
	assert.Contains(t, got.Steps, "export")
}

func TestSetting_YAMLBody(t *testing.T) {
	s := newTestServer(t, Config{})
	body := "steps:\n  echo:\n    job:\n      ShellJob: {shell: echo}\n    concurrency_limit: 1\n"

	rec := s.do(t, http.MethodPut, "/api/v1/setting", "application/yaml; charset=utf-8", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"echo"}, stepNames(s.engine.Steps()))
}

func stepNames(steps []domain.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func TestSetting_Invalid(t *testing.T) {
	s := newTestServer(t, Config{})

	for _, body := range []string{
		`not json`,
		`{"steps": {}}`,
		`{"steps": {"a": {"job": {"ShellJob": {"shell": "sh"}}, "concurrency_limit": 0}}}`,
	} {
		rec := s.do(t, http.MethodPut, "/api/v1/setting", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, ErrCodeBadRequest, errorCode(t, rec))
	}
}

func TestSteps_ListAndGet(t *testing.T) {
	s := newTestServer(t, Config{})
	s.load(t)

	rec := s.do(t, http.MethodGet, "/api/v1/steps", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []StepResponse
	decodeData(t, rec, &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, "export", steps[0].Name)
	assert.Equal(t, "running", steps[0].State)
	assert.False(t, steps[0].Running)
	assert.Equal(t, domain.JobCSV, steps[0].Job)

	rec = s.do(t, http.MethodGet, "/api/v1/steps/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/steps/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, rec))
}

func TestSteps_UpdateState(t *testing.T) {
	s := newTestServer(t, Config{})
	s.load(t)

	rec := s.do(t, http.MethodPut, "/api/v1/steps/export/state", "application/json", `{"state": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var step StepResponse
	decodeData(t, rec, &step)
	assert.Equal(t, "paused", step.State)

	rec = s.do(t, http.MethodPut, "/api/v1/steps/export/state", "application/json", `{"state": "stopped"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	state, _, err := s.engine.State("export")
	require.NoError(t, err)
	assert.Equal(t, domain.StepStopped, state)

	rec = s.do(t, http.MethodPut, "/api/v1/steps/export/state", "application/json", `{"state": 7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/steps/export/state", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/steps/nope/state", "application/json", `{"state": 0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSteps_Run(t *testing.T) {
	s := newTestServer(t, Config{})
	s.load(t)

	rec := s.do(t, http.MethodPost, "/api/v1/steps/export/run", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started RunStartedResponse
	decodeData(t, rec, &started)
	assert.Equal(t, RunStartedResponse{Step: "export", Status: "started"}, started)

	s.handler.Wait()

	data, err := os.ReadFile(filepath.Join(s.dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "row,"))

	rec = s.do(t, http.MethodPost, "/api/v1/steps/missing/run", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// busyEngine сообщает, что шаг уже выполняется.
type busyEngine struct {
	*orchestrator.Engine
}

func (busyEngine) State(string) (domain.StepState, bool, error) {
	return domain.StepRunning, true, nil
}

func TestSteps_RunBusy(t *testing.T) {
	eng := orchestrator.New(orchestrator.Config{})
	h := NewHandler(Config{Engine: busyEngine{eng}})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/steps/any/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrCodeConflict, errorCode(t, rec))
}

func TestRuns(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, Config{})
		rec := s.do(t, http.MethodGet, "/api/v1/runs", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		rec = s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	run := *domain.NewStepRun("export")
	run.Dispatched = 3
	run.MarkSucceeded()
	other := *domain.NewStepRun("other")
	s := newTestServer(t, Config{Runs: &memRuns{runs: []domain.StepRun{run, other}}})

	rec := s.do(t, http.MethodGet, "/api/v1/runs?step=export&limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunResponse
	decodeData(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, domain.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, int64(3), runs[0].Dispatched)

	rec = s.do(t, http.MethodGet, "/api/v1/runs?limit=ten", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+other.ID.String(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got RunResponse
	decodeData(t, rec, &got)
	assert.Equal(t, "other", got.Step)

	rec = s.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_Stream(t *testing.T) {
	events := orchestrator.NewBroadcaster(8, nil)
	s := newTestServer(t, Config{Events: events})

	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?step=export"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return events.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	runID := uuid.New()
	events.Notify(ctx, domain.StartNotification("other", runID))
	events.Notify(ctx, domain.StartNotification("export", runID))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var n domain.Notification
	require.NoError(t, json.Unmarshal(data, &n))
	assert.Equal(t, "export", n.Step)
	assert.Equal(t, domain.NotifyStatus, n.Name)
	assert.Equal(t, domain.StatusStart, n.Status)
	assert.Equal(t, runID, n.RunID)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return events.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_NotConfigured(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := s.do(t, http.MethodGet, "/api/v1/events", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(RequestIDHeader)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

type fixedSchedule map[string]time.Time

func (f fixedSchedule) NextDue(name string) (time.Time, bool) {
	t, ok := f[name]
	return t, ok
}

func TestSteps_NextRunAndVariables(t *testing.T) {
	next := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	s := newTestServer(t, Config{Schedule: fixedSchedule{"export": next}})
	s.load(t)

	rec := s.do(t, http.MethodGet, "/api/v1/steps/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var step StepResponse
	decodeData(t, rec, &step)
	require.NotNil(t, step.NextRun)
	assert.True(t, next.Equal(*step.NextRun))
	assert.Equal(t, []string{"id"}, step.Variables)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, HealthResponse{Status: "ok", Uptime: "1s"})
	assert.Equal(t, http.StatusOK, rec.Code)

	disconnected := false
	rec = httptest.NewRecorder()
	Health(rec, HealthResponse{Status: "degraded", AMQPConnected: &disconnected})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amqp_connected":false`)
}
