package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/replaykit/internal/config"
	"github.com/copyleftdev/replaykit/internal/runs"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Compile-time check to ensure Manager implements the interface
var _ runs.Executor = (*Manager)(nil)

// Manager owns one Chrome process and hands each run its own tab, bounded by
// browser.maxSessions.
type Manager struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	cfg             *config.BrowserConfig
	runner          *runs.Runner
	logger          *zap.Logger
	sem             *semaphore.Weighted
	activeCtxWg     sync.WaitGroup
}

func NewManager(cfg *config.BrowserConfig, runner *runs.Runner, logger *zap.Logger) (*Manager, error) {
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("browser.maxSessions must be at least 1, got %d", cfg.MaxSessions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)

	return &Manager{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
		cfg:             cfg,
		runner:          runner,
		logger:          logger.Named("browser"),
		sem:             semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}, nil
}

func allocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.IgnoreCertErrors,
	)

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	} else {
		opts = append(opts, chromedp.Flag("guest", true))
	}
	return opts
}

// ExecuteRun implements the runs.Executor interface.
func (m *Manager) ExecuteRun(ctx context.Context, run *runs.Run, progress func(int)) (*runs.Result, error) {
	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout)
		defer cancel()
	}

	// Acquire a browser slot from our semaphore
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return &runs.Result{}, fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	defer m.sem.Release(1)

	m.activeCtxWg.Add(1)
	defer m.activeCtxWg.Done()

	log := m.logger.With(zap.String("run_id", run.ID.String()))
	browserCtx, browserCancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Errorf),
	)
	defer browserCancel()

	// The tab lives under the allocator; tie it to the caller's deadline and
	// cancellation as well.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithDeadline(browserCtx, deadline)
		defer cancel()
	}

	// Start the tab before the first action so launch failures are reported
	// as such.
	if err := chromedp.Run(browserCtx); err != nil {
		return &runs.Result{}, fmt.Errorf("failed to start browser tab: %w", err)
	}
	log.Debug("Browser tab started")

	res, err := m.runner.Execute(browserCtx, NewPage(), run, progress)
	if err != nil && ctx.Err() != nil {
		// Report the caller's cancellation rather than the tab teardown.
		return res, fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return res, err
}

// Shutdown implements the runs.Executor interface.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager")

	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}

	shutdownComplete := make(chan struct{})
	go func() {
		m.activeCtxWg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		m.logger.Info("All active browser sessions have finished")
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout reached while waiting for active browser sessions")
		return ctx.Err()
	}

	m.logger.Info("Browser manager shutdown complete")
	return nil
}
