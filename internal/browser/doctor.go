package browser

import (
	"context"
	"fmt"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/replaykit/internal/config"
	"github.com/copyleftdev/replaykit/internal/page"
)

// Report describes a browser that passed Doctor.
type Report struct {
	Product   string `json:"product"`
	UserAgent string `json:"userAgent"`
	// Resolved is the number of elements the locator resolver found on a
	// probe document; it must be 1.
	Resolved int `json:"resolved"`
}

const doctorHTML = `data:text/html,<button data-testid="probe">Probe</button>`

// Doctor launches a browser with cfg, loads a probe document and checks that
// the locator resolver works in it.
func Doctor(ctx context.Context, cfg *config.BrowserConfig) (*Report, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	rep := &Report{}
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, userAgent, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		rep.Product, rep.UserAgent = product, userAgent
		return nil
	}), chromedp.Navigate(doctorHTML))
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	n, err := NewPage().Count(tabCtx, page.Query{Strategy: page.ByRole, Value: "button", Name: "probe"})
	if err != nil {
		return nil, err
	}
	rep.Resolved = n
	if n != 1 {
		return rep, fmt.Errorf("locator resolver found %d elements on the probe document, want 1", n)
	}
	return rep, nil
}
