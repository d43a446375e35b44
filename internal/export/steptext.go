package export

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/vars"
)

// Step text is parsed only to recover literal values the trace does not
// carry, and to pick a fallback record category. It never decides which
// code shape is emitted.

var (
	navigatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^navigate\s+to\s+(\S+)`),
		regexp.MustCompile(`(?i)^go\s+to\s+(\S+)`),
		regexp.MustCompile(`(?i)^open\s+(\S+)`),
	}
	fillPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^fill\s+(?:the\s+)?["']?([^"']+)["']?\s+(?:field\s+)?with\s+(.+)$`),
	}
	typePattern   = regexp.MustCompile(`(?i)^(?:type|enter|input)\s+(.+)\s+(?:in|into)\s+(?:the\s+)?["']?([^"']+)["']?`)
	selectPattern = regexp.MustCompile(`(?i)^select\s+["']?([^"']+)["']?\s+(?:from|in)\s+(?:the\s+)?["']?([^"']+)["']?`)
	clickPattern  = regexp.MustCompile(`(?i)^click\s+(?:on\s+)?(?:the\s+)?["']?([^"']+)["']?\s*(?:button|link|element)?$`)
)

func parseNavigateStep(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, re := range navigatePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

type fillStep struct {
	target string
	value  string
}

func parseFillStep(text string) (fillStep, bool) {
	text = strings.TrimSpace(text)
	for _, re := range fillPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return fillStep{target: strings.TrimSpace(m[1]), value: unquote(m[2])}, true
		}
	}
	if m := typePattern.FindStringSubmatch(text); m != nil {
		return fillStep{target: strings.TrimSpace(m[2]), value: unquote(m[1])}, true
	}
	return fillStep{}, false
}

func parseSelectStep(text string) (label string, ok bool) {
	if m := selectPattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func parseClickStep(text string) (string, bool) {
	if m := clickPattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// stepCategory guesses the tool a step text describes. It is used only to
// pick a fallback record.
func stepCategory(text string) (ir.ToolName, bool) {
	if _, ok := parseNavigateStep(text); ok {
		return ir.ToolNavigate, true
	}
	if _, ok := parseFillStep(text); ok {
		return ir.ToolFill, true
	}
	if _, ok := parseSelectStep(text); ok {
		return ir.ToolSelectOption, true
	}
	if _, ok := parseClickStep(text); ok {
		return ir.ToolClick, true
	}
	lower := strings.ToLower(text)
	for _, c := range []struct {
		word string
		tool ir.ToolName
	}{
		{"navigate", ir.ToolNavigate},
		{"fill", ir.ToolFill},
		{"select", ir.ToolSelectOption},
		{"click", ir.ToolClick},
	} {
		if strings.Contains(lower, c.word) {
			return c.tool, true
		}
	}
	return "", false
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// stepVars are the template variables one raw step used.
type stepVars struct {
	names   []string
	rawText string
}

var (
	stepsHeading = regexp.MustCompile(`(?i)^\s*##\s*steps\b`)
	anyHeading   = regexp.MustCompile(`^\s*##`)
	numberedStep = regexp.MustCompile(`^\s*(\d+)[.)\s]+(.+)$`)
)

// parseRawSpecVars maps step index to the placeholders of that step, read
// from the "## Steps" section of the unrendered spec document.
func parseRawSpecVars(raw string) map[int]stepVars {
	out := map[int]stepVars{}
	inSteps := false
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case stepsHeading.MatchString(line):
			inSteps = true
			continue
		case anyHeading.MatchString(line):
			if inSteps {
				return out
			}
			continue
		}
		if !inSteps {
			continue
		}
		m := numberedStep.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rawText := strings.TrimSpace(m[2])
		if names := vars.Names(rawText); len(names) > 0 {
			out[idx] = stepVars{names: names, rawText: rawText}
		}
	}
	return out
}
