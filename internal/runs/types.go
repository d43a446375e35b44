package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/page"
	"github.com/copyleftdev/replaykit/internal/spec"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the run will not change state again.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Action is one browser action chosen by the driving agent. Text, URL and
// Label may contain {{VAR}} placeholders, rendered just before execution.
type Action struct {
	Tool      ir.ToolName `json:"tool"`
	Target    *page.Query `json:"target,omitempty"`
	URL       string      `json:"url,omitempty"`
	Text      string      `json:"text,omitempty"`
	Label     string      `json:"label,omitempty"`
	Pixels    int         `json:"pixels,omitempty"`
	WaitMS    int         `json:"waitMs,omitempty"`
	StepIndex *int        `json:"stepIndex,omitempty"`
	StepText  string      `json:"stepText,omitempty"`
}

// Run is one execution of a spec's actions in a browser.
type Run struct {
	ID           uuid.UUID `json:"id"`
	SpecPath     string    `json:"specPath"`
	Spec         spec.Spec `json:"spec"`
	RawSpec      string    `json:"-"`
	BaseURL      string    `json:"baseUrl,omitempty"`
	LoginBaseURL string    `json:"loginBaseUrl,omitempty"`
	Actions      []Action  `json:"actions"`
	// Vars are the template variable values. They never leave the process.
	Vars          map[string]string `json:"-"`
	Status        Status            `json:"status"`
	CurrentAction int               `json:"currentAction"`
	Result        *Result           `json:"result,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	CallbackURL   string            `json:"callbackUrl,omitempty"`
}

// Result is the outcome of a finished run.
type Result struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message,omitempty"`
	Error              string   `json:"error,omitempty"`
	ActionsRun         int      `json:"actionsRun"`
	TracePath          string   `json:"tracePath,omitempty"`
	ValidationFailures []string `json:"validationFailures,omitempty"`
}

// NewRun creates a pending run with a fresh ID.
func NewRun(specPath string, s spec.Spec, actions []Action) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New(),
		SpecPath:  specPath,
		Spec:      s,
		Actions:   actions,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateStatus sets the status and touches UpdatedAt.
func (r *Run) UpdateStatus(status Status) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}

// SetResult stores the result of the run.
func (r *Run) SetResult(res *Result, err error) {
	if res == nil {
		res = &Result{}
	}
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	r.Result = res
	r.UpdatedAt = time.Now().UTC()
}

// clone returns a copy that shares no mutable state with r.
func (r *Run) clone() *Run {
	c := *r
	c.Actions = append([]Action(nil), r.Actions...)
	c.Spec.Steps = append([]spec.Step(nil), r.Spec.Steps...)
	c.Spec.Preconditions = append([]string(nil), r.Spec.Preconditions...)
	if r.Result != nil {
		res := *r.Result
		res.ValidationFailures = append([]string(nil), r.Result.ValidationFailures...)
		c.Result = &res
	}
	return &c
}
