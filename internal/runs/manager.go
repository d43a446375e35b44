package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunExists      = errors.New("run already exists")
	ErrRunNotFinished = errors.New("run has not finished")
	ErrShuttingDown   = errors.New("run manager is shutting down")
)

const callbackTimeout = 10 * time.Second

type entry struct {
	run    *Run
	done   chan struct{}
	cancel context.CancelFunc
}

// Manager tracks runs and executes them in the background.
type Manager struct {
	executor Executor
	logger   *zap.Logger
	client   *http.Client

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	runs    map[uuid.UUID]*entry
	closing bool
}

// NewManager creates a run manager on top of an executor.
func NewManager(executor Executor, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		executor:   executor,
		logger:     logger.Named("runs"),
		client:     &http.Client{Timeout: callbackTimeout},
		baseCtx:    ctx,
		cancelBase: cancel,
		runs:       make(map[uuid.UUID]*entry),
	}
}

// SubmitRun stores the run and starts executing it.
func (m *Manager) SubmitRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return ErrShuttingDown
	}
	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{run: run, done: make(chan struct{}), cancel: cancel}
	m.runs[run.ID] = e

	m.wg.Add(1)
	go m.executeRun(ctx, e)
	return nil
}

// GetRun returns a snapshot of a run.
func (m *Manager) GetRun(id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return e.run.clone(), nil
}

// ListRuns returns snapshots of all runs, newest first.
func (m *Manager) ListRuns() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Run, 0, len(m.runs))
	for _, e := range m.runs {
		out = append(out, e.run.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// WaitRun blocks until the run finishes or ctx is done.
func (m *Manager) WaitRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	e, exists := m.runs[id]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	select {
	case <-e.done:
		return m.GetRun(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelRun stops a pending or running run.
func (m *Manager) CancelRun(id uuid.UUID) error {
	m.mu.RLock()
	e, exists := m.runs[id]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	e.cancel()
	return nil
}

// Finished returns the run if it has finished, or ErrRunNotFinished.
func (m *Manager) Finished(id uuid.UUID) (*Run, error) {
	run, err := m.GetRun(id)
	if err != nil {
		return nil, err
	}
	if !run.Status.Finished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotFinished, id, run.Status)
	}
	return run, nil
}

func (m *Manager) executeRun(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer close(e.done)
	defer e.cancel()

	run := e.run
	log := m.logger.With(zap.String("run_id", run.ID.String()), zap.String("spec", run.SpecPath))
	m.update(run, func(r *Run) { r.UpdateStatus(StatusRunning) })
	log.Info("Run started", zap.Int("actions", len(run.Actions)))

	m.mu.RLock()
	snapshot := run.clone()
	snapshot.Vars = run.Vars
	m.mu.RUnlock()

	result, err := m.executor.ExecuteRun(ctx, snapshot, func(i int) {
		m.update(run, func(r *Run) { r.CurrentAction = i })
	})

	m.update(run, func(r *Run) {
		r.SetResult(result, err)
		switch {
		case err == nil:
			r.UpdateStatus(StatusCompleted)
		case errors.Is(err, context.Canceled):
			r.UpdateStatus(StatusCancelled)
		default:
			r.UpdateStatus(StatusFailed)
		}
	})
	if err != nil {
		log.Warn("Run failed", zap.Error(err))
	} else {
		log.Info("Run completed")
	}

	if run.CallbackURL != "" {
		m.mu.RLock()
		final := run.clone()
		m.mu.RUnlock()
		m.notifyCallback(final)
	}
}

func (m *Manager) update(run *Run, fn func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(run)
}

// notifyCallback posts the finished run to its callback URL.
func (m *Manager) notifyCallback(run *Run) {
	log := m.logger.With(zap.String("run_id", run.ID.String()), zap.String("callback", run.CallbackURL))

	body, err := json.Marshal(run)
	if err != nil {
		log.Warn("Failed to encode callback payload", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, run.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Warn("Failed to create callback request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		log.Warn("Failed to send callback", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug("Callback delivered", zap.Int("status", resp.StatusCode))
	} else {
		log.Warn("Callback rejected", zap.Int("status", resp.StatusCode))
	}
}

// Shutdown cancels running runs and waits for them to stop, then shuts the
// executor down.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.cancelBase()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Run manager shut down")
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for runs to stop", zap.Error(ctx.Err()))
		return ctx.Err()
	}
	return m.executor.Shutdown(ctx)
}
