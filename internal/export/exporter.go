// Package export turns a finished run's trace log and its structured spec
// into a standalone, deterministic Playwright test.
//
// Export is all-or-nothing: any step that cannot be mapped to code from the
// recorded evidence fails the whole call and nothing is written, unless TODO
// markers were explicitly allowed.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/replaykit/internal/spec"
)

// Options configure an Exporter.
type Options struct {
	// Dir is the export directory, relative to the request's Cwd unless absolute.
	Dir string
	// EnvPrefix prefixes the environment variables generated tests read.
	EnvPrefix string
	// AllowTodoMarkers writes files for steps that could not be resolved,
	// with a TODO marker in place of the missing code.
	AllowTodoMarkers bool
	Logger           *zap.Logger
}

// Request identifies what to export.
type Request struct {
	Cwd          string
	RunID        string
	SpecPath     string
	Spec         spec.Spec
	BaseURL      string
	LoginBaseURL string
	// RawSpec is the spec document before variable substitution. It is used
	// only to re-introduce variable references.
	RawSpec string
}

// Result reports where the test was written, or why it was not.
type Result struct {
	OK              bool     `json:"ok"`
	ExportPath      string   `json:"exportPath,omitempty"`
	RelativePath    string   `json:"relativePath,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	MissingLocators []string `json:"missingLocators,omitempty"`
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Reason)
}

func failed(reason string) Result {
	return Result{OK: false, Reason: reason}
}

// Exporter synthesizes test files.
type Exporter struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Exporter, applying defaults to unset options.
func New(opts Options) *Exporter {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{opts: opts, logger: logger.Named("export")}
}

// Export reads the run's records for the spec and writes the generated test.
func (e *Exporter) Export(ctx context.Context, req Request) Result {
	if err := ctx.Err(); err != nil {
		return failed("Export failed: " + err.Error())
	}
	log := e.logger.With(zap.String("run_id", req.RunID), zap.String("spec", req.SpecPath))

	records, err := SpecRecords(req.Cwd, req.RunID, req.SpecPath)
	if err != nil {
		log.Warn("Failed to read trace log", zap.Error(err))
		return failed("Failed to read IR file: " + err.Error())
	}
	if len(records) == 0 {
		return failed("Export failed: No IR records found for spec")
	}

	if missing := MissingLocatorActions(records); len(missing) > 0 {
		res := failed(fmt.Sprintf("Export failed: %d action(s) missing valid chosenLocator", len(missing)))
		for _, rec := range missing {
			res.MissingLocators = append(res.MissingLocators, fmt.Sprintf("%s at %s", rec.ToolName, rec.StepIndexLabel()))
		}
		return res
	}

	if err := req.Spec.Validate(); err != nil {
		return failed("Export failed: " + err.Error())
	}

	g := newGeneration(records, req, e.opts.EnvPrefix)
	g.run(req.Spec)
	if len(g.errors) > 0 {
		if !e.opts.AllowTodoMarkers {
			return failed("Export failed: " + strings.Join(g.errors, "; "))
		}
		log.Warn("Writing export with TODO markers", zap.Strings("unresolved", g.errors))
	}

	if err := ctx.Err(); err != nil {
		return failed("Export failed: " + err.Error())
	}
	if err := EnsureDir(req.Cwd, e.opts.Dir, e.opts.EnvPrefix); err != nil {
		return failed("Export failed: " + err.Error())
	}
	out := Path(req.Cwd, e.opts.Dir, req.SpecPath)
	if err := writeFileAtomic(out, []byte(g.render(TestName(req.SpecPath)))); err != nil {
		return failed("Export failed: write test file: " + err.Error())
	}

	rel := RelativePath(req.Cwd, e.opts.Dir, req.SpecPath)
	log.Info("Exported test", zap.String("path", rel), zap.Int("records", len(records)))
	return Result{OK: true, ExportPath: out, RelativePath: rel}
}

// IsExportable reports whether a run has records for specPath and every
// element-targeting action among them has a chosen locator. The reason
// explains a false result.
func IsExportable(cwd, runID, specPath string) (bool, string) {
	records, err := SpecRecords(cwd, runID, specPath)
	if err != nil {
		return false, "Failed to read IR file: " + err.Error()
	}
	if len(records) == 0 {
		return false, "No IR records found for spec"
	}
	if missing := MissingLocatorActions(records); len(missing) > 0 {
		return false, fmt.Sprintf("%d action(s) missing valid chosenLocator", len(missing))
	}
	return true, ""
}
