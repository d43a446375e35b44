package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/recorder"
)

const maxRecordLine = 4 << 20

// ReadRecords reads every record of a trace log. A missing file holds no
// records. Lines that do not decode, such as one cut short by a crash, are
// skipped.
func ReadRecords(path string) ([]ir.ActionRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	var out []ir.ActionRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec ir.ActionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	return out, nil
}

// RunRecords reads the trace log of a run.
func RunRecords(cwd, runID string) ([]ir.ActionRecord, error) {
	return ReadRecords(recorder.BuildPath(cwd, runID))
}

// SpecRecords reads the records of a run that belong to specPath.
func SpecRecords(cwd, runID, specPath string) ([]ir.ActionRecord, error) {
	all, err := RunRecords(cwd, runID)
	if err != nil {
		return nil, err
	}
	want := normalizeSpecPath(cwd, specPath)
	var out []ir.ActionRecord
	for _, rec := range all {
		if normalizeSpecPath(cwd, rec.SpecPath) == want {
			out = append(out, rec)
		}
	}
	return out, nil
}

// HasValidChosenLocator reports whether rec carries replayable locator code.
func HasValidChosenLocator(rec ir.ActionRecord) bool {
	return rec.Element != nil && rec.Element.ChosenLocator != nil &&
		strings.TrimSpace(rec.Element.ChosenLocator.Code) != ""
}

// MissingLocatorActions returns the successful element-targeting records
// that have no chosen locator.
func MissingLocatorActions(records []ir.ActionRecord) []ir.ActionRecord {
	var out []ir.ActionRecord
	for _, rec := range records {
		if rec.Outcome.OK && ir.IsElementTargetingTool(rec.ToolName) && !HasValidChosenLocator(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func normalizeSpecPath(cwd, p string) string {
	if filepath.IsAbs(p) && cwd != "" {
		if rel, err := filepath.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}
