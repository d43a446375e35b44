package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/copyleftdev/replaykit/internal/ir"
)

// Writer appends action records to a run's trace log, one JSON document per
// line. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	cwd  string
	path string
}

// NewWriter creates a writer for the run's trace log. Nothing touches disk
// until the first Write.
func NewWriter(cwd, runID string) *Writer {
	return &Writer{cwd: cwd, path: BuildPath(cwd, runID)}
}

// Path returns the absolute trace log path.
func (w *Writer) Path() string {
	return w.path
}

// RelativePath returns the trace log path relative to the working directory.
func (w *Writer) RelativePath() string {
	return ToSafeRelativePath(w.cwd, w.path)
}

// Write appends one record.
func (w *Writer) Write(rec ir.ActionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	return f.Close()
}
