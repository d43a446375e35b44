package recorder

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/copyleftdev/replaykit/internal/ir"
)

// RedactedMarker replaces secret-bearing values in recorded tool inputs.
const RedactedMarker = "[REDACTED]"

var secretKeyParts = []string{"password", "passwd", "secret", "token", "apikey", "api_key"}

// RedactOptions tells RedactToolInput what counts as secret.
type RedactOptions struct {
	// Vars maps template variable names to their rendered values.
	Vars map[string]string
	// Sensitive marks the target element as a credential field.
	Sensitive bool
}

// RedactToolInput returns a copy of input that is safe to persist. A fill's
// text is replaced by its length and a fillValue describing where the value
// came from; keys named like secrets are masked.
func RedactToolInput(tool ir.ToolName, input map[string]any, opts RedactOptions) map[string]any {
	out := make(map[string]any, len(input)+2)
	for k, v := range input {
		if isSecretKey(k) {
			out[k] = RedactedMarker
			continue
		}
		out[k] = v
	}

	if tool != ir.ToolFill {
		return out
	}

	text, _ := input["text"].(string)
	delete(out, "text")
	out["textLength"] = utf8.RuneCountInString(text)

	switch name := varFor(text, opts.Vars); {
	case name != "":
		out["fillValue"] = map[string]any{"kind": string(ir.FillTemplateVar), "name": name}
	case opts.Sensitive:
		out["fillValue"] = map[string]any{"kind": string(ir.FillRedacted)}
	default:
		out["fillValue"] = map[string]any{"kind": string(ir.FillLiteral), "value": text}
	}
	return out
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// varFor returns the alphabetically first variable whose value is text.
func varFor(text string, vars map[string]string) string {
	if text == "" {
		return ""
	}
	names := make([]string, 0, len(vars))
	for name, v := range vars {
		if v == text {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}
