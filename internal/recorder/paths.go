package recorder

import (
	"path/filepath"
	"strings"
)

const (
	// RunsDir is the per-run namespace under the working directory.
	RunsDir = ".replaykit/runs"
	// TraceFileName is the trace log file inside a run directory.
	TraceFileName = "ir.jsonl"
)

// SanitizePathSegment makes s safe to use as a single path element:
// separators, drive colons, control characters and ".." sequences are
// replaced, and an empty or dot-only result becomes "_".
func SanitizePathSegment(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", "_")
	}
	if cleaned == "" || cleaned == "." {
		return "_"
	}
	return cleaned
}

// RunDir returns the directory holding a run's artifacts.
func RunDir(cwd, runID string) string {
	return filepath.Join(cwd, filepath.FromSlash(RunsDir), SanitizePathSegment(runID))
}

// BuildPath returns the trace log path for a run.
func BuildPath(cwd, runID string) string {
	return filepath.Join(RunDir(cwd, runID), TraceFileName)
}

// ToSafeRelativePath renders p relative to cwd with forward slashes. Paths
// outside cwd are reduced to their base name.
func ToSafeRelativePath(cwd, p string) string {
	rel, err := filepath.Rel(cwd, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}
