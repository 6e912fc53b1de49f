package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRunStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusPending, RunStatusCancelled, true},
		{RunStatusPending, RunStatusSucceeded, false},
		{RunStatusPending, RunStatusFailed, false},
		{RunStatusRunning, RunStatusSucceeded, true},
		{RunStatusRunning, RunStatusFailed, true},
		{RunStatusRunning, RunStatusCancelled, true},
		{RunStatusRunning, RunStatusPending, false},
		{RunStatusSucceeded, RunStatusFailed, false},
		{RunStatusFailed, RunStatusRunning, false},
		{RunStatusCancelled, RunStatusRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusSucceeded, RunStatusFailed, RunStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusRunning} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func validJob() *JobDefinition {
	return &JobDefinition{
		ID:       uuid.New(),
		Name:     "sync-devices",
		IsActive: true,
		Steps: []Step{
			{ID: "fetch", Request: RequestTemplate{Method: "GET", URL: "https://api.test/devices"}},
			{
				ID:        "notify",
				Guard:     "devices.count > 0",
				Request:   RequestTemplate{Method: "POST", URL: "https://hooks.test/notify"},
				Extract:   "response.body.id",
				ExtractTo: "notification_id",
			},
		},
	}
}

func TestJobDefinition_Validate(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*JobDefinition)
		wantErr error
	}{
		{"no steps", func(j *JobDefinition) { j.Steps = nil }, ErrEmptySteps},
		{"empty step id", func(j *JobDefinition) { j.Steps[0].ID = "" }, ErrEmptyStepID},
		{"duplicate step id", func(j *JobDefinition) { j.Steps[1].ID = "fetch" }, ErrDuplicateStepID},
		{"unknown engine", func(j *JobDefinition) { j.Steps[0].Engine = "jinja2" }, ErrUnknownEngine},
		{"missing url", func(j *JobDefinition) { j.Steps[0].Request.URL = "" }, ErrMissingURL},
		{"extract without key", func(j *JobDefinition) { j.Steps[1].ExtractTo = "" }, ErrExtractWithoutKey},
		{"unknown auth mode", func(j *JobDefinition) { j.Steps[0].Auth = &StepAuth{Mode: "oauth1"} }, ErrUnknownAuthMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(job)
			if err := job.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobDefinition_Defaults(t *testing.T) {
	job := validJob()
	job.DefaultTimeoutSec = 20
	job.DefaultRetry = &RetryPolicy{MaxAttempts: 3, Backoff: "exponential"}
	job.Steps[1].TimeoutSec = 5
	job.Steps[1].Retry = &RetryPolicy{MaxAttempts: 1}

	if got := job.TimeoutFor(&job.Steps[0]); got != 20 {
		t.Errorf("step without timeout: got %d, want 20", got)
	}
	if got := job.TimeoutFor(&job.Steps[1]); got != 5 {
		t.Errorf("step timeout override: got %d, want 5", got)
	}

	if got := job.RetryFor(&job.Steps[0]); got.MaxAttempts != 3 {
		t.Errorf("step without retry: got %+v", got)
	}
	if got := job.RetryFor(&job.Steps[1]); got.MaxAttempts != 1 {
		t.Errorf("step retry override: got %+v", got)
	}
}

func TestStep_StrictAndEngineDefaults(t *testing.T) {
	var step Step
	if !step.IsStrict() {
		t.Error("strict must default to true")
	}
	if step.EngineTag() != "gotmpl" {
		t.Errorf("engine default: got %q", step.EngineTag())
	}

	relaxed := false
	step.Strict = &relaxed
	step.Engine = "mustache"
	if step.IsStrict() {
		t.Error("explicit strict=false ignored")
	}
	if step.EngineTag() != "mustache" {
		t.Errorf("engine: got %q", step.EngineTag())
	}
}

func TestRun_Lifecycle(t *testing.T) {
	run := &Run{ID: uuid.New(), Status: RunStatusPending}

	run.MarkRunning()
	if run.Status != RunStatusRunning || run.StartedAt == nil {
		t.Fatalf("after MarkRunning: %+v", run)
	}
	if run.IsFinished() {
		t.Error("running run reported as finished")
	}

	run.MarkSucceeded(map[string]any{"result": "ok"})
	if run.Status != RunStatusSucceeded || run.FinishedAt == nil {
		t.Fatalf("after MarkSucceeded: %+v", run)
	}
	if !run.IsFinished() {
		t.Error("succeeded run not finished")
	}
	if run.Duration() < 0 {
		t.Errorf("negative duration: %v", run.Duration())
	}
}

func TestRun_HasOutcome(t *testing.T) {
	run := &Run{Outcomes: []StepOutcome{{StepID: "fetch", Status: StepStatusSucceeded}}}

	if !run.HasOutcome("fetch") {
		t.Error("recorded outcome not found")
	}
	if run.HasOutcome("notify") {
		t.Error("phantom outcome reported")
	}
}
