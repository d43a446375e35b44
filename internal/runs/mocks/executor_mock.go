package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/copyleftdev/replaykit/internal/runs"
)

// MockExecutor implements the runs.Executor interface for testing
type MockExecutor struct {
	mu             sync.Mutex
	executedRuns   []*runs.Run
	results        map[string]*runs.Result
	errors         map[string]error
	block          chan struct{}
	shutdownCalled bool
	shutdownError  error
}

// NewMockExecutor creates a new mock executor
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		results: make(map[string]*runs.Result),
		errors:  make(map[string]error),
	}
}

// ExecuteRun implements the runs.Executor interface
func (m *MockExecutor) ExecuteRun(ctx context.Context, run *runs.Run, progress func(int)) (*runs.Result, error) {
	m.mu.Lock()
	m.executedRuns = append(m.executedRuns, run)
	block := m.block
	result, hasResult := m.results[run.ID.String()]
	err := m.errors[run.ID.String()]
	m.mu.Unlock()

	for i := range run.Actions {
		if progress != nil {
			progress(i)
		}
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &runs.Result{}, ctx.Err()
		}
	}

	if hasResult || err != nil {
		return result, err
	}
	return &runs.Result{
		Success:    true,
		Message:    fmt.Sprintf("Mock execution of run %s", run.ID),
		ActionsRun: len(run.Actions),
	}, nil
}

// Shutdown implements the runs.Executor interface
func (m *MockExecutor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownCalled = true
	return m.shutdownError
}

// ExecutedRuns returns the runs that were executed
func (m *MockExecutor) ExecutedRuns() []*runs.Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*runs.Run(nil), m.executedRuns...)
}

// WasShutdownCalled returns whether Shutdown was called
func (m *MockExecutor) WasShutdownCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shutdownCalled
}

// SetExecutionResult sets a predefined result for a run ID
func (m *MockExecutor) SetExecutionResult(runID string, result *runs.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[runID] = result
	m.errors[runID] = err
}

// SetShutdownError sets the error to return from Shutdown
func (m *MockExecutor) SetShutdownError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownError = err
}

// Block makes every execution wait until the returned function is called or
// the run's context is cancelled.
func (m *MockExecutor) Block() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan struct{})
	m.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}
