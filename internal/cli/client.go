package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// JobResponse — определение задания из API.
type JobResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	IsActive bool           `json:"is_active"`
	Steps    []any          `json:"steps"`
	Schedule map[string]any `json:"schedule,omitempty"`
	Created  string         `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string        `json:"id"`
	JobID      string        `json:"job_id"`
	Status     string        `json:"status"`
	Outcomes   []OutcomeView `json:"outcomes,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"started_at,omitempty"`
	FinishedAt string        `json:"finished_at,omitempty"`
	CreatedAt  string        `json:"created_at"`
}

// OutcomeView — исход шага из API.
type OutcomeView struct {
	StepID   string `json:"step_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// CreateRunRequest — запуск задания.
type CreateRunRequest struct {
	JobID          string         `json:"job_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CreateRunResponse — ответ на запуск.
type CreateRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	JobID  string
	Status string
	Limit  int
}

// Client — HTTP клиент для API worker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient создаёт клиент API.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do выполняет запрос и декодирует data-конверт ответа.
func (c *Client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
			return fmt.Errorf("%s (%s)", envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	var envelope dataEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(raw, out)
}

// StartRun запускает задание.
func (c *Client) StartRun(req CreateRunRequest) (*CreateRunResponse, error) {
	var out CreateRunResponse
	if err := c.do(http.MethodPost, "/api/runs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun возвращает run.
func (c *Client) GetRun(runID string) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns возвращает runs по фильтру.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	q := url.Values{}
	if opts.JobID != "" {
		q.Set("job_id", opts.JobID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}

	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []RunResponse
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelRun запрашивает отмену run.
func (c *Client) CancelRun(runID string) error {
	return c.do(http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

// ApplyJob создаёт или обновляет задание.
func (c *Client) ApplyJob(jobID string, spec map[string]any) (*JobResponse, error) {
	var out JobResponse
	if err := c.do(http.MethodPut, "/api/jobs/"+url.PathEscape(jobID), spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob возвращает задание.
func (c *Client) GetJob(jobID string) (*JobResponse, error) {
	var out JobResponse
	if err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs возвращает все задания.
func (c *Client) ListJobs() ([]JobResponse, error) {
	var out []JobResponse
	if err := c.do(http.MethodGet, "/api/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteJob удаляет задание.
func (c *Client) DeleteJob(jobID string) error {
	return c.do(http.MethodDelete, "/api/jobs/"+url.PathEscape(jobID), nil, nil)
}
