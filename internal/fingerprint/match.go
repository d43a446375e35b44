package fingerprint

import (
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
)

// DefaultThreshold is the agreement ratio two fingerprints need to be
// considered the same element.
const DefaultThreshold = 0.5

// Matcher compares fingerprints. The zero value uses DefaultThreshold.
type Matcher struct {
	Threshold float64
}

// Match compares a and b with the default threshold.
func Match(a, b ir.ElementFingerprint) bool {
	return Matcher{}.Match(a, b)
}

// Match reports whether a and b likely describe the same element.
//
// A shared test id or id is decisive. Otherwise differing tags reject, and
// the remaining attributes present on both sides must agree at least
// Threshold of the time. With nothing to compare the fingerprints match.
func (m Matcher) Match(a, b ir.ElementFingerprint) bool {
	if a.TestID != "" && a.TestID == b.TestID {
		return true
	}
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.TagName != "" && b.TagName != "" && a.TagName != b.TagName {
		return false
	}

	var matched, total int
	check := func(x, y string) {
		if x == "" || y == "" {
			return
		}
		total++
		if x == y {
			matched++
		}
	}
	check(a.Role, b.Role)
	check(a.AccessibleName, b.AccessibleName)
	check(a.NameAttr, b.NameAttr)
	check(a.TypeAttr, b.TypeAttr)
	check(a.Placeholder, b.Placeholder)
	check(a.AriaLabel, b.AriaLabel)

	if a.TextSnippet != "" && b.TextSnippet != "" {
		total++
		at := strings.ToLower(strings.TrimSpace(a.TextSnippet))
		bt := strings.ToLower(strings.TrimSpace(b.TextSnippet))
		if strings.Contains(at, bt) || strings.Contains(bt, at) {
			matched++
		}
	}

	if total == 0 {
		return true
	}
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return float64(matched)/float64(total) >= threshold
}
