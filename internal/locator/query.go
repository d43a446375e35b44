package locator

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/page"
)

// QueryFor translates a candidate into the page query that resolves the same
// elements as its generated code.
func QueryFor(c ir.LocatorCandidate) (page.Query, error) {
	if c.Value == "" {
		return page.Query{}, fmt.Errorf("%s candidate has empty value", c.Kind)
	}
	switch c.Kind {
	case ir.KindTestID:
		return page.Query{Strategy: page.ByTestID, Value: c.Value}, nil
	case ir.KindRole:
		role, name, ok := strings.Cut(c.Value, ":")
		if !ok || role == "" {
			return page.Query{}, fmt.Errorf("malformed role value %q", c.Value)
		}
		return page.Query{Strategy: page.ByRole, Value: role, Name: name}, nil
	case ir.KindLabel:
		return page.Query{Strategy: page.ByLabel, Value: c.Value}, nil
	case ir.KindPlaceholder:
		return page.Query{Strategy: page.ByPlaceholder, Value: c.Value}, nil
	case ir.KindCSSID:
		return page.CSS(IDSelector(c.Value)), nil
	case ir.KindCSSAttr:
		attr, val, ok := strings.Cut(c.Value, "=")
		if !ok || attr == "" {
			return page.Query{}, fmt.Errorf("malformed attribute value %q", c.Value)
		}
		return page.CSS(AttrSelector(attr, val)), nil
	case ir.KindCSSSelector:
		return page.CSS(c.Value), nil
	case ir.KindTextExact:
		return page.Query{Strategy: page.ByText, Value: c.Value, Exact: true}, nil
	case ir.KindText:
		return page.Query{Strategy: page.ByText, Value: c.Value}, nil
	}
	return page.Query{}, fmt.Errorf("unknown locator kind %q", c.Kind)
}
