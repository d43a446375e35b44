// Package locator turns element fingerprints into ranked, validated ways of
// re-finding the element: candidate generation, live validation against a
// page, and selection of the single best candidate.
package locator

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/ir"
)

// DefaultNameMax caps role names and text locators derived from text.
const DefaultNameMax = 50

var (
	inputLikeTags = map[string]bool{"input": true, "textarea": true, "select": true}
	clickableTags = map[string]bool{"button": true, "a": true, "span": true, "div": true, "li": true, "td": true, "th": true}
)

// Generator produces locator candidates. The zero value uses DefaultNameMax.
type Generator struct {
	// NameMax caps role names that fall back to text and text locators.
	NameMax int
}

// Generate produces candidates with the default Generator.
func Generate(fp ir.ElementFingerprint) []ir.LocatorCandidate {
	return Generator{}.Generate(fp)
}

// Generate returns every candidate whose triggering attribute is present in
// fp, in generation order. An empty fingerprint yields no candidates.
func (g Generator) Generate(fp ir.ElementFingerprint) []ir.LocatorCandidate {
	nameMax := g.NameMax
	if nameMax <= 0 {
		nameMax = DefaultNameMax
	}
	tag := strings.ToLower(fp.TagName)

	var out []ir.LocatorCandidate
	add := func(kind ir.LocatorKind, value, code string) {
		out = append(out, ir.LocatorCandidate{Kind: kind, Value: value, Code: code})
	}

	if fp.TestID != "" {
		add(ir.KindTestID, fp.TestID, call("getByTestId", fp.TestID))
		for _, attr := range fingerprint.TestIDAttributes() {
			add(ir.KindCSSAttr, attr+"="+fp.TestID, cssCode(AttrSelector(attr, fp.TestID)))
		}
	}

	if fp.Role != "" {
		name := fp.AccessibleName
		if name == "" {
			name = fingerprint.Truncate(fp.TextSnippet, nameMax)
		}
		if name != "" {
			add(ir.KindRole, fp.Role+":"+name,
				fmt.Sprintf("page.getByRole('%s', { name: '%s' })", EscapeJS(fp.Role), EscapeJS(name)))
		}
	}

	if fp.AriaLabel != "" {
		add(ir.KindLabel, fp.AriaLabel, call("getByLabel", fp.AriaLabel))
	} else if fp.AccessibleName != "" && inputLikeTags[tag] {
		add(ir.KindLabel, fp.AccessibleName, call("getByLabel", fp.AccessibleName))
	}

	if fp.Placeholder != "" {
		add(ir.KindPlaceholder, fp.Placeholder, call("getByPlaceholder", fp.Placeholder))
		if inputLikeTags[tag] {
			sel := tag + AttrSelector("placeholder", fp.Placeholder)
			add(ir.KindCSSSelector, sel, cssCode(sel))
		}
	}

	if fp.ID != "" {
		add(ir.KindCSSID, fp.ID, cssCode(IDSelector(fp.ID)))
	}

	if fp.NameAttr != "" {
		add(ir.KindCSSAttr, "name="+fp.NameAttr, cssCode(AttrSelector("name", fp.NameAttr)))
	}

	if fp.TextSnippet != "" && clickableTags[tag] {
		short := fingerprint.Truncate(fp.TextSnippet, nameMax)
		add(ir.KindTextExact, short, fmt.Sprintf("page.getByText('%s', { exact: true })", EscapeJS(short)))
		add(ir.KindText, short, call("getByText", short))
	}

	return out
}

func call(method, arg string) string {
	return "page." + method + "('" + EscapeJS(arg) + "')"
}

func cssCode(selector string) string {
	return "page.locator('" + EscapeJS(selector) + "')"
}
