package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-resty/resty/v2"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — шаг из API.
type StepResponse struct {
	Name             string     `json:"name"`
	State            string     `json:"state"`
	Running          bool       `json:"running"`
	ConcurrencyLimit int        `json:"concurrency_limit"`
	RateLimit        float64    `json:"rate_limit,omitempty"`
	Schedule         string     `json:"schedule,omitempty"`
	Job              string     `json:"job"`
	TaskIters        []any      `json:"task_iters,omitempty"`
	Variables        []string   `json:"variables,omitempty"`
	NextRun          *time.Time `json:"next_run,omitempty"`
}

// RunStartedResponse — ответ на запуск шага.
type RunStartedResponse struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// SettingLoadedResponse — ответ на загрузку Setting.
type SettingLoadedResponse struct {
	Steps   []string `json:"steps"`
	Version int64    `json:"version,omitempty"`
}

// RunResponse — запись истории запусков из API.
type RunResponse struct {
	ID         string `json:"id"`
	Step       string `json:"step"`
	Status     string `json:"status"`
	Dispatched int64  `json:"dispatched"`
	Failed     int64  `json:"failed"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Notification — уведомление из потока /events.
type Notification struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Step    string `json:"step"`
	RunID   string `json:"run_id"`
	Time    string `json:"time"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Step   string
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ответ API с кодом ошибки.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для harvester API.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json").
			SetError(&errorResponse{}),
	}
}

// --- Setting ---

// LoadSetting отправляет документ Setting. yaml выбирает Content-Type.
func (c *Client) LoadSetting(ctx context.Context, doc []byte, yaml bool) (*SettingLoadedResponse, error) {
	contentType := "application/json"
	if yaml {
		contentType = "application/yaml"
	}
	var out SettingLoadedResponse
	err := c.do(c.http.R().SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(doc), http.MethodPut, "/api/v1/setting", &out)
	return &out, err
}

// GetSetting возвращает текущий Setting как есть.
func (c *Client) GetSetting(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(c.http.R().SetContext(ctx), http.MethodGet, "/api/v1/setting", &out)
	return out, err
}

// --- Steps ---

// ListSteps возвращает шаги.
func (c *Client) ListSteps(ctx context.Context) ([]StepResponse, error) {
	var out []StepResponse
	err := c.do(c.http.R().SetContext(ctx), http.MethodGet, "/api/v1/steps", &out)
	return out, err
}

// GetStep возвращает шаг по имени.
func (c *Client) GetStep(ctx context.Context, name string) (*StepResponse, error) {
	var out StepResponse
	err := c.do(c.http.R().SetContext(ctx), http.MethodGet, "/api/v1/steps/"+url.PathEscape(name), &out)
	return &out, err
}

// RunStep запускает шаг.
func (c *Client) RunStep(ctx context.Context, name string) (*RunStartedResponse, error) {
	var out RunStartedResponse
	err := c.do(c.http.R().SetContext(ctx), http.MethodPost, "/api/v1/steps/"+url.PathEscape(name)+"/run", &out)
	return &out, err
}

// SetState меняет состояние шага: running, paused или stopped.
func (c *Client) SetState(ctx context.Context, name, state string) (*StepResponse, error) {
	var out StepResponse
	err := c.do(c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"state": state}),
		http.MethodPut, "/api/v1/steps/"+url.PathEscape(name)+"/state", &out)
	return &out, err
}

// --- Runs ---

// ListRuns возвращает историю запусков.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunResponse, error) {
	req := c.http.R().SetContext(ctx)
	if opts.Step != "" {
		req.SetQueryParam("step", opts.Step)
	}
	if opts.Status != "" {
		req.SetQueryParam("status", opts.Status)
	}
	if opts.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(opts.Limit))
	}

	var out []RunResponse
	err := c.do(req, http.MethodGet, "/api/v1/runs", &out)
	return out, err
}

// GetRun возвращает запуск по ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var out RunResponse
	err := c.do(c.http.R().SetContext(ctx), http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), &out)
	return &out, err
}

// --- Events ---

// EventStream — открытый websocket-поток уведомлений.
type EventStream struct {
	conn *websocket.Conn
}

// OpenEvents подключается к потоку уведомлений. step ограничивает
// поток одним шагом.
func (c *Client) OpenEvents(ctx context.Context, step string) (*EventStream, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/events")
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if step != "" {
		u.RawQuery = url.Values{"step": {step}}.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to event stream: %w", err)
	}
	return &EventStream{conn: conn}, nil
}

// Next ждёт следующее уведомление. io.EOF — сервер закрыл поток.
func (s *EventStream) Next(ctx context.Context) (Notification, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Notification{}, io.EOF
		}
		return Notification{}, fmt.Errorf("read event: %w", err)
	}
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("decode event: %w", err)
	}
	return n, nil
}

// Close закрывает поток.
func (s *EventStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// --- HTTP helpers ---

// do выполняет запрос и распаковывает поле data в result.
func (c *Client) do(req *resty.Request, method, path string, result any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}

	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if er, ok := resp.Error().(*errorResponse); ok && er != nil {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}

	if resp.StatusCode() == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.Unmarshal(resp.Body(), &dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}
