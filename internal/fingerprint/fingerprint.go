// Package fingerprint captures a compact attribute snapshot of a DOM element
// and decides whether two snapshots describe the same element.
package fingerprint

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/page"
)

// MaxTextSnippet is the default cap on textSnippet, in characters.
const MaxTextSnippet = 100

var testIDAttrs = []string{"data-testid", "data-test-id", "data-test"}

// TestIDAttributes returns the attribute names probed for a test id, in
// precedence order.
func TestIDAttributes() []string {
	out := make([]string, len(testIDAttrs))
	copy(out, testIDAttrs)
	return out
}

// Extract reads a fingerprint from a live element. It never fails: any error
// yields an empty fingerprint. The caller still owns el.
func Extract(ctx context.Context, el page.Element) ir.ElementFingerprint {
	return ExtractWithLimit(ctx, el, MaxTextSnippet)
}

// ExtractWithLimit is Extract with a custom text snippet cap.
func ExtractWithLimit(ctx context.Context, el page.Element, maxText int) ir.ElementFingerprint {
	if el == nil {
		return ir.ElementFingerprint{}
	}
	snap, err := el.Snapshot(ctx)
	if err != nil {
		return ir.ElementFingerprint{}
	}
	return FromSnapshot(snap, maxText)
}

// FromSnapshot builds a fingerprint from raw element data. The text is
// trimmed first and then truncated to maxText characters.
func FromSnapshot(s page.Snapshot, maxText int) ir.ElementFingerprint {
	if maxText <= 0 {
		maxText = MaxTextSnippet
	}
	attr := func(name string) string {
		return s.Attrs[name]
	}

	tag := strings.ToLower(s.TagName)
	fp := ir.ElementFingerprint{
		TagName:   tag,
		Role:      attr("role"),
		ID:        attr("id"),
		NameAttr:  attr("name"),
		AriaLabel: attr("aria-label"),
	}

	if fp.AriaLabel != "" {
		fp.AccessibleName = fp.AriaLabel
	} else {
		fp.AccessibleName = strings.TrimSpace(s.LabelText)
	}

	if isTextEntry(tag) {
		fp.Placeholder = attr("placeholder")
	}
	fp.TypeAttr = s.TypeProp
	if fp.TypeAttr == "" {
		fp.TypeAttr = attr("type")
	}

	for _, name := range testIDAttrs {
		if v := attr(name); v != "" {
			fp.TestID = v
			break
		}
	}

	fp.TextSnippet = Truncate(strings.TrimSpace(s.Text), maxText)
	return fp
}

// Truncate caps s at n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func isTextEntry(tag string) bool {
	return tag == "input" || tag == "textarea"
}
