package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/locator"
	"github.com/copyleftdev/replaykit/internal/page"
	"github.com/copyleftdev/replaykit/internal/recorder"
	"github.com/copyleftdev/replaykit/internal/vars"
)

const (
	defaultActionTimeout = 30 * time.Second
	// maxVisibleProbe bounds how many text matches an assertion inspects.
	maxVisibleProbe = 5
)

var (
	ErrUnsupportedTool = errors.New("unsupported tool")
	ErrNotVisible      = errors.New("no visible match")
	errMissingTarget   = errors.New("action has no target")
	errMissingValue    = errors.New("action has no value")
)

// RunnerOptions configure a Runner.
type RunnerOptions struct {
	// Cwd roots trace logs and is where exports are written later.
	Cwd string
	// Recording turns trace capture on.
	Recording             bool
	ProbeTimeout          time.Duration
	MaxValidationFailures int
	Matcher               fingerprint.Matcher
	Generator             locator.Generator
	TextMax               int
	ActionTimeout         time.Duration
	Logger                *zap.Logger
	Now                   func() time.Time
}

// Runner executes a run's actions against a Driver, wrapping each action in
// the two-phase recording protocol: evidence is captured before the action
// and the record is written after it.
type Runner struct {
	opts   RunnerOptions
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts, logger: opts.Logger.Named("runner")}
}

func (r *Runner) newRecorder(run *Run, values map[string]string) recorder.ActionRecorder {
	if !r.opts.Recording {
		return recorder.Nop
	}
	return recorder.New(recorder.Options{
		Cwd:          r.opts.Cwd,
		RunID:        run.ID.String(),
		SpecPath:     run.SpecPath,
		Enabled:      true,
		Vars:         values,
		ProbeTimeout: r.opts.ProbeTimeout,
		MaxFailures:  r.opts.MaxValidationFailures,
		Matcher:      r.opts.Matcher,
		Generator:    r.opts.Generator,
		TextMax:      r.opts.TextMax,
		Logger:       r.opts.Logger,
		Now:          r.opts.Now,
	})
}

// Execute performs every action of run on d, in order, stopping at the first
// failure. The returned Result is never nil.
func (r *Runner) Execute(ctx context.Context, d Driver, run *Run, progress func(int)) (*Result, error) {
	res := &Result{}
	values, err := vars.WithTOTP(run.Vars, r.opts.Now())
	if err != nil {
		return res, fmt.Errorf("derive TOTP: %w", err)
	}
	rec := r.newRecorder(run, values)
	res.TracePath = rec.Path()
	log := r.logger.With(zap.String("run_id", run.ID.String()))

	for i, a := range run.Actions {
		if progress != nil {
			progress(i)
		}
		if err := ctx.Err(); err != nil {
			res.ValidationFailures = rec.ValidationFailures()
			return res, err
		}
		if a.StepText == "" && a.StepIndex != nil {
			if st, ok := run.Spec.Step(*a.StepIndex); ok {
				a.StepText = st.Text
			}
		}
		if err := r.step(ctx, d, rec, a, values); err != nil {
			log.Warn("Action failed", zap.Int("action", i), zap.String("tool", string(a.Tool)), zap.Error(err))
			res.ValidationFailures = rec.ValidationFailures()
			return res, fmt.Errorf("action %d (%s): %w", i, a.Tool, err)
		}
		res.ActionsRun++
	}

	res.Success = true
	res.Message = fmt.Sprintf("%d action(s) completed", res.ActionsRun)
	res.ValidationFailures = rec.ValidationFailures()
	log.Info("Run finished", zap.Int("actions", res.ActionsRun), zap.Int("validation_failures", len(res.ValidationFailures)))
	return res, nil
}

func (r *Runner) step(ctx context.Context, d Driver, rec recorder.ActionRecorder, raw Action, values map[string]string) error {
	a, err := renderAction(raw, values)
	if err != nil {
		return err
	}

	pre := rec.PrepareForAction(ctx, d, a.Tool, a.Target)

	actx, cancel := context.WithTimeout(ctx, r.opts.ActionTimeout)
	input, err := perform(actx, d, a)
	cancel()
	keepPlaceholders(input, raw)

	outcome := ir.Outcome{OK: err == nil}
	if err != nil {
		outcome.ErrorCode = errorCode(err)
		outcome.Message = err.Error()
	}
	rec.RecordAction(ctx, recorder.RecordContext{
		Page:      d,
		ToolName:  a.Tool,
		ToolInput: input,
		StepIndex: a.StepIndex,
		StepText:  a.StepText,
	}, outcome, pre)
	return err
}

// perform runs one action and returns the tool input to record.
func perform(ctx context.Context, d Driver, a Action) (map[string]any, error) {
	input := map[string]any{}
	if a.Target != nil {
		input["target"] = describe(*a.Target)
	}
	needTarget := func() error {
		if a.Target == nil || a.Target.Value == "" {
			return errMissingTarget
		}
		return nil
	}

	switch a.Tool {
	case ir.ToolNavigate:
		input["url"] = a.URL
		if a.URL == "" {
			return input, errMissingValue
		}
		return input, d.Navigate(ctx, a.URL)
	case ir.ToolClick:
		if err := needTarget(); err != nil {
			return input, err
		}
		return input, d.Click(ctx, *a.Target)
	case ir.ToolFill:
		input["text"] = a.Text
		if err := needTarget(); err != nil {
			return input, err
		}
		return input, d.Fill(ctx, *a.Target, a.Text)
	case ir.ToolSelectOption:
		input["label"] = a.Label
		if err := needTarget(); err != nil {
			return input, err
		}
		if a.Label == "" {
			return input, errMissingValue
		}
		return input, d.SelectOption(ctx, *a.Target, a.Label)
	case ir.ToolScroll:
		input["pixels"] = a.Pixels
		return input, d.Scroll(ctx, a.Pixels)
	case ir.ToolWait:
		input["ms"] = a.WaitMS
		return input, sleep(ctx, time.Duration(a.WaitMS)*time.Millisecond)
	case ir.ToolAssertTextPresent:
		input["text"] = a.Text
		if a.Text == "" {
			return input, errMissingValue
		}
		nth, err := firstVisible(ctx, d, page.Query{Strategy: page.ByText, Value: a.Text})
		if err != nil {
			return input, err
		}
		input["visibleNth"] = nth
		return input, nil
	case ir.ToolAssertElementVisible:
		if err := needTarget(); err != nil {
			return input, err
		}
		_, err := firstVisible(ctx, d, *a.Target)
		return input, err
	}
	return input, fmt.Errorf("%w: %s", ErrUnsupportedTool, a.Tool)
}

// firstVisible returns the index of the first visible element among the
// first few matches of q.
func firstVisible(ctx context.Context, p page.Page, q page.Query) (int, error) {
	n, err := p.Count(ctx, q)
	if err != nil {
		return -1, err
	}
	if n == 0 {
		return -1, page.ErrNoElement
	}
	for i := 0; i < min(n, maxVisibleProbe); i++ {
		el, err := p.Nth(ctx, q, i)
		if err != nil {
			continue
		}
		visible, err := el.Visible(ctx)
		el.Release(context.WithoutCancel(ctx))
		if err == nil && visible {
			return i, nil
		}
	}
	return -1, ErrNotVisible
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderAction(a Action, values map[string]string) (Action, error) {
	var err error
	render := func(s string) string {
		if err != nil || s == "" {
			return s
		}
		var out string
		out, err = vars.Render(s, values)
		return out
	}
	a.URL = render(a.URL)
	a.Text = render(a.Text)
	a.Label = render(a.Label)
	if a.Target != nil {
		q := *a.Target
		q.Value = render(q.Value)
		q.Name = render(q.Name)
		a.Target = &q
	}
	if err != nil {
		return a, fmt.Errorf("render action: %w", err)
	}
	return a, nil
}

// keepPlaceholders puts the unrendered target and asserted text back into a
// recorded input. Fill text stays rendered; the recorder redacts it.
func keepPlaceholders(input map[string]any, raw Action) {
	if raw.Target != nil {
		input["target"] = describe(*raw.Target)
	}
	if raw.Tool == ir.ToolAssertTextPresent && raw.Text != "" {
		input["text"] = raw.Text
	}
}

func describe(q page.Query) string {
	s := string(q.Strategy) + "=" + q.Value
	if q.Name != "" {
		s += "[name=" + q.Name + "]"
	}
	return s
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, page.ErrNoElement):
		return "not_found"
	case errors.Is(err, ErrNotVisible):
		return "not_visible"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUnsupportedTool):
		return "unsupported"
	case errors.Is(err, errMissingTarget), errors.Is(err, errMissingValue):
		return "invalid_input"
	}
	return "action_failed"
}
