package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/page"
)

// DefaultProbeTimeout bounds each candidate probe.
const DefaultProbeTimeout = 2 * time.Second

// ValidateOptions configures Validate.
type ValidateOptions struct {
	Page     page.Page
	ToolName ir.ToolName
	// Original is the fingerprint of the element the action targeted. When
	// empty, fingerprint agreement is not checked.
	Original ir.ElementFingerprint
	Timeout  time.Duration
	Matcher  fingerprint.Matcher
	// TextMax caps text snippets of re-extracted fingerprints.
	TextMax int
}

// Validate probes every candidate against the live page and returns copies
// annotated with their validation. A failing probe marks only that candidate
// invalid.
func Validate(ctx context.Context, cs []ir.LocatorCandidate, opts ValidateOptions) []ir.LocatorCandidate {
	out := make([]ir.LocatorCandidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, ValidateCandidate(ctx, c, opts))
	}
	return out
}

// ValidateCandidate probes one candidate within opts.Timeout.
func ValidateCandidate(ctx context.Context, c ir.LocatorCandidate, opts ValidateOptions) ir.LocatorCandidate {
	c.Validation = probe(ctx, c, opts)
	return c
}

func probe(ctx context.Context, c ir.LocatorCandidate, opts ValidateOptions) ir.LocatorValidation {
	fail := func(v ir.LocatorValidation, err error) ir.LocatorValidation {
		v.Unique = false
		v.Error = err.Error()
		return v
	}

	if opts.Page == nil {
		return fail(ir.LocatorValidation{}, fmt.Errorf("no page to validate against"))
	}
	q, err := QueryFor(c)
	if err != nil {
		return fail(ir.LocatorValidation{}, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var v ir.LocatorValidation
	n, err := opts.Page.Count(pctx, q)
	if err != nil {
		return fail(v, err)
	}
	v.MatchCount = n
	if n == 0 {
		v.Error = "No elements found"
		return v
	}
	v.Unique = n == 1
	if n > 1 {
		v.Error = fmt.Sprintf("Multiple elements found: %d", n)
	}

	el, err := opts.Page.Nth(pctx, q, 0)
	if err != nil {
		return fail(v, err)
	}
	defer el.Release(context.WithoutCancel(ctx))

	visible, err := el.Visible(pctx)
	if err != nil {
		return fail(v, err)
	}
	v.Visible = ir.BoolPtr(visible)

	if ir.IsMutatingTool(opts.ToolName) {
		enabled, err := el.Enabled(pctx)
		if err != nil {
			return fail(v, err)
		}
		v.Enabled = ir.BoolPtr(enabled)
	}

	if !opts.Original.IsEmpty() {
		snap, err := el.Snapshot(pctx)
		if err != nil {
			return fail(v, err)
		}
		current := fingerprint.FromSnapshot(snap, opts.TextMax)
		v.FingerprintMatch = ir.BoolPtr(opts.Matcher.Match(opts.Original, current))
	}

	return v
}

// FilterValid keeps candidates that are unique, not hidden and not a
// fingerprint mismatch.
func FilterValid(cs []ir.LocatorCandidate) []ir.LocatorCandidate {
	var out []ir.LocatorCandidate
	for _, c := range cs {
		v := c.Validation
		if v.Unique && !ir.IsFalse(v.Visible) && !ir.IsFalse(v.FingerprintMatch) {
			out = append(out, c)
		}
	}
	return out
}

// FilterValidByAction keeps the candidates usable for the given tool.
// Mutating tools additionally require the element to be enabled. Role
// candidates with several matches are kept so ChooseBest can fall back to
// them.
func FilterValidByAction(cs []ir.LocatorCandidate, tool ir.ToolName) []ir.LocatorCandidate {
	var out []ir.LocatorCandidate
	for _, c := range cs {
		v := c.Validation
		resolvable := v.Unique || (c.Kind == ir.KindRole && v.MatchCount > 1)
		if !resolvable || ir.IsFalse(v.Visible) || ir.IsFalse(v.FingerprintMatch) {
			continue
		}
		if ir.IsMutatingTool(tool) && ir.IsFalse(v.Enabled) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FailureSummary describes why each rejected candidate failed, or returns ""
// when every candidate passed.
func FailureSummary(cs []ir.LocatorCandidate) string {
	var parts []string
	for _, c := range cs {
		if reason := failureReason(c.Validation); reason != "" {
			parts = append(parts, fmt.Sprintf("%s(%s): %s", c.Kind, c.Value, reason))
		}
	}
	return strings.Join(parts, "; ")
}

func failureReason(v ir.LocatorValidation) string {
	switch {
	case v.Error != "":
		return v.Error
	case !v.Unique:
		return "not unique"
	case ir.IsFalse(v.Visible):
		return "not visible"
	case ir.IsFalse(v.Enabled):
		return "not enabled"
	case ir.IsFalse(v.FingerprintMatch):
		return "fingerprint mismatch"
	}
	return ""
}
