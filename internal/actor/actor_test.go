package actor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
)

// fakeRunWriter — запись run в память для тестов актора.
type fakeRunWriter struct {
	mu          sync.Mutex
	running     bool
	outcomes    []domain.StepOutcome
	finalStatus domain.RunStatus
	finalErr    string
	finalCtx    map[string]any
}

func (f *fakeRunWriter) MarkRunning(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeRunWriter) AppendStepOutcome(_ context.Context, _ uuid.UUID, outcome domain.StepOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeRunWriter) Finalize(_ context.Context, _ uuid.UUID, status domain.RunStatus, errMsg string, finalCtx map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalStatus = status
	f.finalErr = errMsg
	f.finalCtx = finalCtx
	return nil
}

func newTestRun(jobID uuid.UUID, trigger map[string]any) *domain.Run {
	now := time.Now().UTC()
	return &domain.Run{
		ID:        uuid.New(),
		JobID:     jobID,
		Status:    domain.RunStatusPending,
		Trigger:   trigger,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestCaller() *Caller {
	return NewCaller(engine.NewEngines(), nil)
}

func TestActor_SuccessWithExtract(t *testing.T) {
	// Первый шаг возвращает id, второй отправляет его в теле запроса
	var secondBody string
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "charge-42"})
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		secondBody = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))
	defer second.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:        "create",
				Request:   domain.RequestTemplate{Method: "GET", URL: first.URL},
				Extract:   "response.body.id",
				ExtractTo: "charge_id",
			},
			{
				ID: "confirm",
				Request: domain.RequestTemplate{
					Method: "POST",
					URL:    second.URL,
					Body:   `{"charge": "{{ .charge_id }}"}`,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (error %q)", status, writer.finalErr)
	}
	if !writer.running {
		t.Error("run should have been marked RUNNING")
	}
	if len(writer.outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(writer.outcomes))
	}
	if writer.outcomes[0].StepID != "create" || writer.outcomes[1].StepID != "confirm" {
		t.Errorf("outcomes out of order: %v", writer.outcomes)
	}
	// Extract виден следующему шагу
	if secondBody != `{"charge": "charge-42"}` {
		t.Errorf("extracted value not rendered into body: %q", secondBody)
	}
	// И попадает в final context
	if writer.finalCtx["charge_id"] != "charge-42" {
		t.Errorf("expected charge_id in final context, got %v", writer.finalCtx)
	}
}

func TestActor_GuardSkipsStep(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:      "charge",
				Guard:   "amount > 100",
				Request: domain.RequestTemplate{Method: "POST", URL: server.URL},
			},
			{
				ID:      "refund",
				Guard:   "amount < 50",
				Request: domain.RequestTemplate{Method: "POST", URL: server.URL},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, map[string]any{"amount": 150})

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (error %q)", status, writer.finalErr)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 outbound call, got %d", calls)
	}
	if writer.outcomes[0].Status != domain.StepStatusSucceeded {
		t.Errorf("charge step: expected SUCCEEDED, got %s", writer.outcomes[0].Status)
	}
	// guard=false — SKIPPED, не ошибка
	if writer.outcomes[1].Status != domain.StepStatusSkipped {
		t.Errorf("refund step: expected SKIPPED, got %s", writer.outcomes[1].Status)
	}
}

func TestActor_GuardEvalErrorFailsRun(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				// Переменной нет в контексте: ошибка guard, не тихий пропуск
				ID:      "step1",
				Guard:   "missing_var > 10",
				Request: domain.RequestTemplate{Method: "GET", URL: server.URL},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
	if calls != 0 {
		t.Errorf("guard error must prevent the call, got %d calls", calls)
	}
	if writer.outcomes[0].Status != domain.StepStatusFailed {
		t.Errorf("expected FAILED outcome, got %s", writer.outcomes[0].Status)
	}
	if writer.finalErr == "" {
		t.Error("final error should carry the guard failure")
	}
}

func TestActor_RetryExhaustion(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:      "flaky",
				Request: domain.RequestTemplate{Method: "GET", URL: server.URL},
				Retry: &domain.RetryPolicy{
					MaxAttempts:    3,
					Backoff:        "fixed",
					InitialDelayMs: 1,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
	// Ровно MaxAttempts попыток, не больше
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	outcome := writer.outcomes[0]
	if outcome.Attempts != 3 {
		t.Errorf("outcome should record 3 attempts, got %d", outcome.Attempts)
	}
	if outcome.Response == nil || outcome.Response.StatusCode != http.StatusInternalServerError {
		t.Errorf("outcome should capture the last response: %+v", outcome.Response)
	}
}

func TestActor_NonTwoHundredIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "gone"}`))
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{ID: "probe", Request: domain.RequestTemplate{Method: "GET", URL: server.URL}},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
	outcome := writer.outcomes[0]
	if outcome.Attempts != 1 {
		t.Errorf("no retry policy: expected 1 attempt, got %d", outcome.Attempts)
	}
	if outcome.Response.StatusCode != http.StatusNotFound {
		t.Errorf("expected captured 404, got %d", outcome.Response.StatusCode)
	}
	if outcome.Response.Body != `{"error": "gone"}` {
		t.Errorf("expected verbatim body capture, got %q", outcome.Response.Body)
	}
}

// fakeTokens выдаёт токены по очереди и считает сбросы кэша.
type fakeTokens struct {
	mu          sync.Mutex
	tokens      []string
	issued      int
	invalidated []string
}

func (f *fakeTokens) Token(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := f.tokens[f.issued]
	if f.issued < len(f.tokens)-1 {
		f.issued++
	}
	return tok, nil
}

func (f *fakeTokens) Invalidate(scope string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, scope)
}

func TestActor_UnauthorizedInvalidatesToken(t *testing.T) {
	// Сервер отвергает первый токен и принимает второй: retry после
	// 401 должен идти со свежим токеном, а не с отозванным.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokens{tokens: []string{"tok-stale", "tok-fresh"}}
	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:      "call",
				Request: domain.RequestTemplate{Method: "GET", URL: server.URL},
				Auth:    &domain.StepAuth{Mode: domain.StepAuthBearer, Scope: "billing.write"},
				Retry: &domain.RetryPolicy{
					MaxAttempts:    2,
					Backoff:        "fixed",
					InitialDelayMs: 1,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)
	caller := NewCaller(engine.NewEngines(), tokens)

	status := New(job, run, writer, caller).Run(context.Background())

	if status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (error %q)", status, writer.finalErr)
	}
	if len(tokens.invalidated) != 1 || tokens.invalidated[0] != "billing.write" {
		t.Errorf("expected one invalidation of billing.write, got %v", tokens.invalidated)
	}
}

func TestActor_CancelledBeforeStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no call expected after cancellation")
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{ID: "step1", Request: domain.RequestTemplate{Method: "GET", URL: server.URL}},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status := New(job, run, writer, newTestCaller()).Run(ctx)

	if status != domain.RunStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", status)
	}
	if writer.finalStatus != domain.RunStatusCancelled {
		t.Errorf("store should record CANCELLED, got %s", writer.finalStatus)
	}
}

func TestActor_CancelledDuringBackoff(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:      "slow",
				Request: domain.RequestTemplate{Method: "GET", URL: server.URL},
				Retry: &domain.RetryPolicy{
					MaxAttempts:    5,
					Backoff:        "fixed",
					InitialDelayMs: 5000,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Отмена приходит во время backoff после первой попытки
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	status := New(job, run, writer, newTestCaller()).Run(ctx)

	if status != domain.RunStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", status)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
	// Backoff прерван, а не дожидался 5 секунд
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation should interrupt backoff sleep")
	}
}

func TestActor_StrictRenderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("render failure must prevent the call")
	}))
	defer server.Close()

	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID: "step1",
				Request: domain.RequestTemplate{
					Method: "POST",
					URL:    server.URL,
					Body:   `{"v": "{{ .not_there }}"}`,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
	if writer.outcomes[0].Error == "" {
		t.Error("outcome should record the render error")
	}
}

func TestActor_NonStrictRenderSubstitutesEmpty(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	lenient := false
	job := &domain.JobDefinition{
		ID: uuid.New(),
		Steps: []domain.Step{
			{
				ID:     "step1",
				Strict: &lenient,
				Request: domain.RequestTemplate{
					Method: "POST",
					URL:    server.URL,
					Body:   `{"v": "{{ .not_there }}"}`,
				},
			},
		},
	}

	writer := &fakeRunWriter{}
	run := newTestRun(job.ID, nil)

	status := New(job, run, writer, newTestCaller()).Run(context.Background())

	if status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (error %q)", status, writer.finalErr)
	}
	if body != `{"v": ""}` {
		t.Errorf("expected empty substitution, got %q", body)
	}
}

func TestBackoffDelay(t *testing.T) {
	policy := &domain.RetryPolicy{
		MaxAttempts:    5,
		Backoff:        "exponential",
		InitialDelayMs: 100,
		MaxDelayMs:     1000,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1000 * time.Millisecond}, // ограничено MaxDelayMs
		{10, 1000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, policy); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}

	// fixed: всегда initial delay
	fixed := &domain.RetryPolicy{Backoff: "fixed", InitialDelayMs: 250}
	if got := backoffDelay(3, fixed); got != 250*time.Millisecond {
		t.Errorf("fixed: expected 250ms, got %v", got)
	}

	// nil policy — секунда
	if got := backoffDelay(1, nil); got != time.Second {
		t.Errorf("nil policy: expected 1s, got %v", got)
	}
}
