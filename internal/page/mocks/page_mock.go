package mocks

import (
	"context"
	"sync"

	"github.com/copyleftdev/replaykit/internal/page"
)

// FakeElement implements page.Element for testing
type FakeElement struct {
	Snap     page.Snapshot
	SnapErr  error
	Hidden   bool
	Disabled bool

	mu       sync.Mutex
	released int
}

// NewElement creates a visible, enabled fake element
func NewElement(tag string, attrs map[string]string, text string) *FakeElement {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &FakeElement{Snap: page.Snapshot{TagName: tag, Attrs: attrs, Text: text, TypeProp: attrs["type"]}}
}

// Snapshot implements page.Element
func (e *FakeElement) Snapshot(ctx context.Context) (page.Snapshot, error) {
	if e.SnapErr != nil {
		return page.Snapshot{}, e.SnapErr
	}
	return e.Snap, nil
}

// Visible implements page.Element
func (e *FakeElement) Visible(ctx context.Context) (bool, error) {
	return !e.Hidden, nil
}

// Enabled implements page.Element
func (e *FakeElement) Enabled(ctx context.Context) (bool, error) {
	return !e.Disabled, nil
}

// Release implements page.Element
func (e *FakeElement) Release(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released++
}

// Released returns how many times Release was called
func (e *FakeElement) Released() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// FakePage implements page.Page over a fixed table of query results
type FakePage struct {
	mu       sync.Mutex
	url      string
	urlErr   error
	results  map[page.Query][]*FakeElement
	countErr map[page.Query]error
	queries  []page.Query
}

// NewFakePage creates a fake page at the given URL
func NewFakePage(url string) *FakePage {
	return &FakePage{
		url:      url,
		results:  make(map[page.Query][]*FakeElement),
		countErr: make(map[page.Query]error),
	}
}

// On registers the elements a query resolves to
func (p *FakePage) On(q page.Query, elems ...*FakeElement) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[q] = elems
	return p
}

// FailOn makes Count fail for a query
func (p *FakePage) FailOn(q page.Query, err error) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countErr[q] = err
	return p
}

// SetURL changes the current URL
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetURLError makes URL fail
func (p *FakePage) SetURLError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlErr = err
}

// URL implements page.Page
func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.urlErr
}

// Count implements page.Page
func (p *FakePage) Count(ctx context.Context, q page.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	if err := p.countErr[q]; err != nil {
		return 0, err
	}
	return len(p.results[q]), nil
}

// Nth implements page.Page
func (p *FakePage) Nth(ctx context.Context, q page.Query, n int) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	elems := p.results[q]
	if n < 0 || n >= len(elems) {
		return nil, page.ErrNoElement
	}
	return elems[n], nil
}

// Queries returns every query passed to Count, in order
func (p *FakePage) Queries() []page.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]page.Query, len(p.queries))
	copy(out, p.queries)
	return out
}
