// Package recorder captures element evidence around each browser action and
// appends one trace record per action to the run's log. Recording is fail
// open: nothing in this package ever fails the action it observes.
package recorder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/locator"
	"github.com/copyleftdev/replaykit/internal/page"
	"go.uber.org/zap"
)

const defaultMaxFailures = 100

// ActionRecorder is the two-phase recording protocol.
type ActionRecorder interface {
	Enabled() bool
	PrepareForAction(ctx context.Context, p page.Page, tool ir.ToolName, target *page.Query) PreActionResult
	RecordAction(ctx context.Context, rc RecordContext, outcome ir.Outcome, pre PreActionResult)
	ValidationFailures() []string
	Path() string
}

// Options configures a Recorder.
type Options struct {
	Cwd      string
	RunID    string
	SpecPath string
	Enabled  bool
	// Vars are the rendered template variables of the run, used to record
	// fill values by reference.
	Vars         map[string]string
	ProbeTimeout time.Duration
	MaxFailures  int
	Matcher      fingerprint.Matcher
	Generator    locator.Generator
	TextMax      int
	Logger       *zap.Logger
	Now          func() time.Time
}

// PreActionResult carries element evidence from PrepareForAction to
// RecordAction. A nil Fingerprint means no element was captured.
type PreActionResult struct {
	Fingerprint *ir.ElementFingerprint
	Candidates  []ir.LocatorCandidate
}

// RecordContext describes the action that was performed.
type RecordContext struct {
	Page      page.Page
	ToolName  ir.ToolName
	ToolInput map[string]any
	StepIndex *int
	StepText  string
}

// Recorder implements ActionRecorder for one run.
type Recorder struct {
	opts   Options
	writer *Writer
	logger *zap.Logger

	mu       sync.Mutex
	failures []string
}

var _ ActionRecorder = (*Recorder)(nil)

// New creates a recorder. Whether it records is fixed here.
func New(opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = locator.DefaultProbeTimeout
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.TextMax <= 0 {
		opts.TextMax = fingerprint.MaxTextSnippet
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		opts:   opts,
		writer: NewWriter(opts.Cwd, opts.RunID),
		logger: opts.Logger.Named("recorder").With(zap.String("run_id", opts.RunID)),
	}
}

// Enabled reports whether the recorder writes anything.
func (r *Recorder) Enabled() bool {
	return r.opts.Enabled
}

// Path returns the trace log path relative to the working directory.
func (r *Recorder) Path() string {
	return r.writer.RelativePath()
}

// ValidationFailures returns the retained failure summaries, oldest first.
func (r *Recorder) ValidationFailures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.failures))
	copy(out, r.failures)
	return out
}

// PrepareForAction captures the target's fingerprint and validated locator
// candidates. Call it before the action runs; the element may be gone
// afterwards. It returns an empty result when disabled, when the tool does
// not target an element, when no target is given, or on any failure.
func (r *Recorder) PrepareForAction(ctx context.Context, p page.Page, tool ir.ToolName, target *page.Query) (res PreActionResult) {
	if !r.opts.Enabled || !ir.IsElementTargetingTool(tool) || target == nil || p == nil {
		return PreActionResult{}
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Debug("prepare panicked", zap.Any("panic", v))
			res = PreActionResult{}
		}
	}()

	el, err := r.resolve(ctx, p, *target)
	if err != nil {
		r.logger.Debug("target not resolved", zap.String("tool", string(tool)), zap.Error(err))
		return PreActionResult{}
	}
	fpCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	fp := fingerprint.ExtractWithLimit(fpCtx, el, r.opts.TextMax)
	cancel()
	el.Release(ctx)

	candidates := locator.Validate(ctx, r.opts.Generator.Generate(fp), locator.ValidateOptions{
		Page:     p,
		ToolName: tool,
		Original: fp,
		Timeout:  r.opts.ProbeTimeout,
		Matcher:  r.opts.Matcher,
		TextMax:  r.opts.TextMax,
	})
	return PreActionResult{Fingerprint: &fp, Candidates: candidates}
}

// resolve finds the single element the target addresses.
func (r *Recorder) resolve(ctx context.Context, p page.Page, q page.Query) (page.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	n, err := p.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, page.ErrNoElement
	case n > 1:
		return nil, fmt.Errorf("target is ambiguous: %d elements match", n)
	}
	return p.Nth(ctx, q, 0)
}

// RecordAction appends the record of a finished action. Call it after the
// action ran, with the result of PrepareForAction. Errors are logged and
// dropped.
func (r *Recorder) RecordAction(ctx context.Context, rc RecordContext, outcome ir.Outcome, pre PreActionResult) {
	if !r.opts.Enabled {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Debug("record panicked", zap.Any("panic", v))
		}
	}()

	var pageURL string
	if rc.Page != nil {
		if u, err := rc.Page.URL(ctx); err == nil {
			pageURL = u
		}
	}

	var element *ir.ElementRecord
	if ir.IsElementTargetingTool(rc.ToolName) && pre.Fingerprint != nil {
		valid := locator.FilterValidByAction(pre.Candidates, rc.ToolName)
		if len(pre.Candidates) > 0 && len(valid) == 0 {
			if summary := locator.FailureSummary(pre.Candidates); summary != "" {
				r.addFailure(fmt.Sprintf("%s[step=%s]: %s", rc.ToolName, stepLabel(rc.StepIndex), summary))
			}
		}
		if valid == nil {
			valid = []ir.LocatorCandidate{}
		}
		element = &ir.ElementRecord{Fingerprint: *pre.Fingerprint, LocatorCandidates: valid}
		if chosen, ok := locator.ChooseBest(valid); ok {
			element.ChosenLocator = &chosen
		}
	}

	sensitive := pre.Fingerprint != nil && pre.Fingerprint.TypeAttr == "password"
	rec := ir.ActionRecord{
		RunID:     r.opts.RunID,
		SpecPath:  r.opts.SpecPath,
		StepIndex: rc.StepIndex,
		StepText:  rc.StepText,
		ToolName:  rc.ToolName,
		ToolInput: RedactToolInput(rc.ToolName, rc.ToolInput, RedactOptions{Vars: r.opts.Vars, Sensitive: sensitive}),
		Outcome:   outcome,
		PageURL:   pageURL,
		Element:   element,
		Timestamp: r.opts.Now().UnixMilli(),
	}

	if err := r.writer.Write(rec); err != nil {
		r.logger.Debug("trace write failed", zap.String("tool", string(rc.ToolName)), zap.Error(err))
	}
}

func (r *Recorder) addFailure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
	if over := len(r.failures) - r.opts.MaxFailures; over > 0 {
		r.failures = append(r.failures[:0:0], r.failures[over:]...)
	}
}

func stepLabel(idx *int) string {
	if idx == nil {
		return "null"
	}
	return strconv.Itoa(*idx)
}

// Nop is a recorder that never records.
var Nop ActionRecorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) Enabled() bool { return false }

func (nopRecorder) PrepareForAction(context.Context, page.Page, ir.ToolName, *page.Query) PreActionResult {
	return PreActionResult{}
}

func (nopRecorder) RecordAction(context.Context, RecordContext, ir.Outcome, PreActionResult) {}

func (nopRecorder) ValidationFailures() []string { return nil }

func (nopRecorder) Path() string { return "" }
