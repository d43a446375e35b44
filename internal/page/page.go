// Package page describes the small slice of live browser capability the
// recording pipeline depends on: resolving a query to elements, counting
// matches, probing visibility and enabled state, reading attributes and text,
// and reading the current URL.
package page

import (
	"context"
	"errors"
)

// ErrNoElement is returned by Page.Nth when the query has no match at the
// requested index.
var ErrNoElement = errors.New("no element matched the query")

// Strategy selects how a Query is resolved.
type Strategy string

const (
	ByTestID      Strategy = "testid"
	ByRole        Strategy = "role"
	ByLabel       Strategy = "label"
	ByPlaceholder Strategy = "placeholder"
	ByCSS         Strategy = "css"
	ByText        Strategy = "text"
)

// Query addresses zero or more elements on a page. Name is only used by
// ByRole. Exact turns substring matching into whole-string matching.
type Query struct {
	Strategy Strategy `json:"strategy"`
	Value    string   `json:"value"`
	Name     string   `json:"name,omitempty"`
	Exact    bool     `json:"exact,omitempty"`
}

// CSS is a shorthand for a CSS selector query.
func CSS(selector string) Query {
	return Query{Strategy: ByCSS, Value: selector}
}

// Snapshot is the raw material of a fingerprint, read from one element at
// one instant.
type Snapshot struct {
	TagName string
	// Attrs holds the element's attributes as written in the markup.
	Attrs map[string]string
	// Text is the element's textContent, untrimmed.
	Text string
	// LabelText is the text of the first associated <label>, if any.
	LabelText string
	// TypeProp is the element's type property, which reflects defaults
	// (e.g. "text" for an input without a type attribute).
	TypeProp string
}

// Element is a live handle to one DOM element. Callers must Release it.
type Element interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Page is a live page.
type Page interface {
	URL(ctx context.Context) (string, error)
	Count(ctx context.Context, q Query) (int, error)
	Nth(ctx context.Context, q Query, n int) (Element, error)
}
