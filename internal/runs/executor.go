package runs

import (
	"context"

	"github.com/copyleftdev/replaykit/internal/page"
)

// Executor runs the actions of a run in a browser. It decouples the run
// manager from the browser implementation.
type Executor interface {
	// ExecuteRun performs every action of the run and reports the result.
	// progress is called with the index of each action before it starts.
	ExecuteRun(ctx context.Context, run *Run, progress func(int)) (*Result, error)

	Shutdown(ctx context.Context) error
}

// Driver is a live page that can also be acted on.
type Driver interface {
	page.Page
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, q page.Query) error
	Fill(ctx context.Context, q page.Query, text string) error
	SelectOption(ctx context.Context, q page.Query, label string) error
	Scroll(ctx context.Context, pixels int) error
}
