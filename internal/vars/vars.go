// Package vars renders {{NAME}} template variables and loads their values
// from the environment.
package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Pattern matches a {{ NAME }} placeholder; the name is the first group.
var Pattern = regexp.MustCompile(`\{\{\s*([A-Z0-9_]+)\s*\}\}`)

// RenderError lists the placeholders that could not be substituted.
type RenderError struct {
	Unknown []string
	Missing []string
}

func (e *RenderError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "Unknown template variables: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "Missing template variables: "+strings.Join(e.Missing, ", "))
	}
	return strings.Join(parts, "\n")
}

// Render substitutes every placeholder in text. A name absent from values is
// unknown; a name present with an empty value is missing. Either yields a
// *RenderError.
func Render(text string, values map[string]string) (string, error) {
	unknown := map[string]bool{}
	missing := map[string]bool{}

	out := Pattern.ReplaceAllStringFunc(text, func(full string) string {
		name := Pattern.FindStringSubmatch(full)[1]
		v, ok := values[name]
		switch {
		case !ok:
			unknown[name] = true
			return full
		case v == "":
			missing[name] = true
			return full
		}
		return v
	})

	if len(unknown) > 0 || len(missing) > 0 {
		return "", &RenderError{Unknown: sortedKeys(unknown), Missing: sortedKeys(missing)}
	}
	return out, nil
}

// Names returns the distinct placeholder names in text, in order of first
// appearance.
func Names(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range Pattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// LoadEnvFiles loads <dir>/.env.<envName> and <dir>/.env into the process
// environment. Variables already set in the process win, and the
// environment-specific file wins over .env. Missing files are skipped; the
// loaded paths are returned in load order.
func LoadEnvFiles(dir, envName string) ([]string, error) {
	var files []string
	if envName = strings.TrimSpace(envName); envName != "" {
		files = append(files, filepath.Join(dir, ".env."+envName))
	}
	files = append(files, filepath.Join(dir, ".env"))

	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load never overrides a variable that is already set
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// FromEnv collects variables from environment entries named <prefix>NAME,
// keyed by NAME. environ is typically os.Environ().
func FromEnv(prefix string, environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		if name := strings.TrimPrefix(k, prefix); name != "" {
			out[name] = v
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
