package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/page"
	"github.com/copyleftdev/replaykit/internal/runs"
)

var (
	// ErrAmbiguous is returned when an action's target matches more than one
	// element.
	ErrAmbiguous = errors.New("target matches more than one element")
	// ErrNotActionable is returned when the target never became visible and
	// enabled before the action deadline.
	ErrNotActionable = errors.New("target is not visible and enabled")
)

const pollInterval = 100 * time.Millisecond

var _ runs.Driver = (*Page)(nil)

// Page drives the chromedp tab carried by the context it is called with.
// Every method must receive a context derived from a chromedp context.
type Page struct{}

// NewPage returns a Page.
func NewPage() *Page {
	return &Page{}
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *Page) Count(ctx context.Context, q page.Query) (int, error) {
	var n int
	err := chromedp.Run(ctx, chromedp.Evaluate(countExpr(q), &n, returnByValue))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Strategy, err)
	}
	return n, nil
}

func (p *Page) Nth(ctx context.Context, q page.Query, n int) (page.Element, error) {
	var obj *runtime.RemoteObject
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(nthExpr(q, n)).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		obj = res
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", q.Strategy, err)
	}
	if obj == nil || obj.ObjectID == "" {
		return nil, page.ErrNoElement
	}
	return &element{id: obj.ObjectID}, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

func (p *Page) Click(ctx context.Context, q page.Query) error {
	el, err := p.actionable(ctx, q)
	if err != nil {
		return err
	}
	defer el.Release(context.WithoutCancel(ctx))

	var pt struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := el.call(ctx, centerFn, &pt); err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.MouseClickXY(pt.X, pt.Y))
}

func (p *Page) Fill(ctx context.Context, q page.Query, text string) error {
	el, err := p.actionable(ctx, q)
	if err != nil {
		return err
	}
	defer el.Release(context.WithoutCancel(ctx))
	return el.call(ctx, fillDecl(text), nil)
}

func (p *Page) SelectOption(ctx context.Context, q page.Query, label string) error {
	el, err := p.actionable(ctx, q)
	if err != nil {
		return err
	}
	defer el.Release(context.WithoutCancel(ctx))
	return el.call(ctx, selectDecl(label), nil)
}

func (p *Page) Scroll(ctx context.Context, pixels int) error {
	return chromedp.Run(ctx, chromedp.Evaluate(scrollExpr(pixels), nil))
}

// actionable waits until q resolves to exactly one visible, enabled element.
// On deadline it returns the last reason the element was not usable.
func (p *Page) actionable(ctx context.Context, q page.Query) (*element, error) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		el, err := p.tryActionable(ctx, q)
		if err == nil {
			return el, nil
		}
		if errors.Is(err, ErrAmbiguous) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, err
			}
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Page) tryActionable(ctx context.Context, q page.Query) (*element, error) {
	n, err := p.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, page.ErrNoElement
	case n > 1:
		return nil, fmt.Errorf("%w: %d matches", ErrAmbiguous, n)
	}

	pel, err := p.Nth(ctx, q, 0)
	if err != nil {
		return nil, err
	}
	el := pel.(*element)
	visible, err := el.Visible(ctx)
	if err == nil && visible {
		var enabled bool
		enabled, err = el.Enabled(ctx)
		if err == nil && enabled {
			return el, nil
		}
	}
	el.Release(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	return nil, ErrNotActionable
}

// element is a remote object handle to one DOM node.
type element struct {
	id runtime.RemoteObjectID
}

func (e *element) call(ctx context.Context, decl string, out any) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.CallFunctionOn(decl).
			WithObjectID(e.id).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
}

func (e *element) Snapshot(ctx context.Context) (page.Snapshot, error) {
	var raw struct {
		HTML  string `json:"html"`
		Label string `json:"label"`
		Type  string `json:"type"`
	}
	if err := e.call(ctx, snapshotFn, &raw); err != nil {
		return page.Snapshot{}, err
	}
	snap, err := fingerprint.SnapshotFromHTML(raw.HTML)
	if err != nil {
		return page.Snapshot{}, err
	}
	snap.LabelText = raw.Label
	if raw.Type != "" {
		snap.TypeProp = raw.Type
	}
	return snap, nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, visibleFn, &ok)
	return ok, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, enabledFn, &ok)
	return ok, err
}

func (e *element) Release(ctx context.Context) {
	_ = chromedp.Run(ctx, runtime.ReleaseObject(e.id))
}

func returnByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithSilent(true)
}
