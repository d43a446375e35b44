package locator

import (
	"regexp"
	"slices"
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
)

var priorities = map[ir.LocatorKind]int{
	ir.KindTestID:      1,
	ir.KindRole:        2,
	ir.KindLabel:       3,
	ir.KindPlaceholder: 4,
	ir.KindCSSID:       5,
	ir.KindCSSAttr:     6,
	ir.KindCSSSelector: 7,
	ir.KindTextExact:   8,
	ir.KindText:        9,
}

// Priority returns the rank of a locator kind; lower is preferred. Unknown
// kinds rank after every known kind.
func Priority(kind ir.LocatorKind) int {
	if p, ok := priorities[kind]; ok {
		return p
	}
	return len(priorities) + 1
}

// SortByPriority returns a copy of cs ordered by Priority. Equal kinds keep
// their relative order.
func SortByPriority(cs []ir.LocatorCandidate) []ir.LocatorCandidate {
	out := slices.Clone(cs)
	slices.SortStableFunc(out, func(a, b ir.LocatorCandidate) int {
		return Priority(a.Kind) - Priority(b.Kind)
	})
	return out
}

var (
	rolePrefix       = regexp.MustCompile(`^(\w+):`)
	interactiveRoles = map[string]bool{"button": true, "link": true, "textbox": true, "combobox": true, "listbox": true}
)

// ChooseBest picks the candidate to replay with. The first pass takes the
// highest-priority candidate that is unique, not hidden and not a
// fingerprint mismatch. Failing that, a role candidate for an interactive
// role is accepted without uniqueness. ok is false when nothing qualifies.
func ChooseBest(cs []ir.LocatorCandidate) (ir.LocatorCandidate, bool) {
	sorted := SortByPriority(cs)

	for _, c := range sorted {
		v := c.Validation
		if v.Unique && !ir.IsFalse(v.Visible) && !ir.IsFalse(v.FingerprintMatch) {
			return c, true
		}
	}

	for _, c := range sorted {
		v := c.Validation
		if prefersRole(c) && !ir.IsFalse(v.Visible) && !ir.IsFalse(v.FingerprintMatch) {
			return c, true
		}
	}

	return ir.LocatorCandidate{}, false
}

func prefersRole(c ir.LocatorCandidate) bool {
	if c.Kind != ir.KindRole {
		return false
	}
	m := rolePrefix.FindStringSubmatch(c.Value)
	if m == nil {
		return false
	}
	return interactiveRoles[strings.ToLower(m[1])]
}
