package export

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/locator"
	"github.com/copyleftdev/replaykit/internal/spec"
	"github.com/copyleftdev/replaykit/internal/vars"
)

var jsReserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true, "function": true,
	"if": true, "import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true, "with": true,
	"yield": true, "let": true, "static": true, "await": true, "implements": true, "interface": true,
	"package": true, "private": true, "protected": true, "public": true,
	// names the generated file already declares
	"page": true, "test": true, "expect": true, "baseurl": true, "loginbaseurl": true,
	"loadenvfiles": true, "getenvvar": true, "totp": true,
}

// constName is the JavaScript constant holding the value of a variable.
func constName(varName string) string {
	n := strings.ToLower(varName)
	if n == "" || (n[0] >= '0' && n[0] <= '9') {
		n = "v_" + n
	}
	if jsReserved[n] {
		n += "_"
	}
	return n
}

// generation is the state of one file being synthesized.
type generation struct {
	baseURL      string
	loginBaseURL string
	envPrefix    string
	stepVars     map[int]stepVars
	records      []ir.ActionRecord
	consumed     []bool

	envVars    map[string]bool
	needsLogin bool
	needsTOTP  bool
	errors     []string
	body       []string
}

func newGeneration(records []ir.ActionRecord, req Request, envPrefix string) *generation {
	g := &generation{
		baseURL:      req.BaseURL,
		loginBaseURL: req.LoginBaseURL,
		envPrefix:    envPrefix,
		stepVars:     map[int]stepVars{},
		records:      records,
		consumed:     make([]bool, len(records)),
		envVars:      map[string]bool{},
	}
	if req.RawSpec != "" {
		g.stepVars = parseRawSpecVars(req.RawSpec)
	}
	return g
}

func (g *generation) fail(format string, args ...any) {
	g.errors = append(g.errors, fmt.Sprintf(format, args...))
}

// todo is the marker emitted in place of code that could not be generated.
func todo(step spec.Step, what string) []string {
	return []string{fmt.Sprintf("  // TODO: Step %d - %s", step.Index, what)}
}

// run synthesizes the test body step by step.
func (g *generation) run(s spec.Spec) {
	for _, step := range s.Steps {
		var lines []string
		if step.Kind == spec.KindAssertion {
			lines = g.assertionStep(step)
		} else {
			lines = g.actionStep(step)
		}
		if len(lines) == 0 {
			continue
		}
		g.body = append(g.body, fmt.Sprintf("  // Step %d: %s", step.Index, g.stepComment(step)))
		g.body = append(g.body, lines...)
	}
}

// recordsFor returns the successful records of a step that satisfy keep,
// marking them consumed.
func (g *generation) recordsFor(step spec.Step, keep func(ir.ActionRecord) bool) []ir.ActionRecord {
	var out []ir.ActionRecord
	for i, rec := range g.records {
		if g.consumed[i] || !rec.Outcome.OK || rec.StepIndex == nil || *rec.StepIndex != step.Index {
			continue
		}
		if keep(rec) {
			g.consumed[i] = true
			out = append(out, rec)
		}
	}
	return out
}

// fallbackRecord finds an unconsumed successful record without a step index
// whose tool matches the category the step text describes.
func (g *generation) fallbackRecord(step spec.Step) (ir.ActionRecord, bool) {
	tool, ok := stepCategory(step.Text)
	if !ok {
		return ir.ActionRecord{}, false
	}
	for i, rec := range g.records {
		if g.consumed[i] || !rec.Outcome.OK || rec.StepIndex != nil || rec.ToolName != tool {
			continue
		}
		g.consumed[i] = true
		return rec, true
	}
	return ir.ActionRecord{}, false
}

func (g *generation) assertionStep(step spec.Step) []string {
	recs := g.recordsFor(step, func(r ir.ActionRecord) bool { return ir.IsAssertionTool(r.ToolName) })
	if len(recs) == 0 {
		g.fail("Assertion step %d missing assertion IR record", step.Index)
		return todo(step, "No IR record found")
	}
	var lines []string
	for i, rec := range recs {
		lines = append(lines, g.assertion(step, rec, i+1)...)
	}
	return lines
}

func (g *generation) assertion(step spec.Step, rec ir.ActionRecord, n int) []string {
	v := fmt.Sprintf("locator%d_%d", step.Index, n)
	switch rec.ToolName {
	case ir.ToolAssertTextPresent:
		text := rec.InputString("text")
		if text == "" {
			g.fail("Assertion step %d missing text in IR", step.Index)
			return todo(step, "Assertion text missing")
		}
		expr := g.jsString(text)
		if nth, ok := rec.InputInt("visibleNth"); ok {
			return []string{
				fmt.Sprintf("  const %s = page.getByText(%s);", v, expr),
				fmt.Sprintf("  await expect(%s.nth(%d)).toBeVisible();", v, nth),
			}
		}
		return []string{fmt.Sprintf("  await expect(page.getByText(%s).first()).toBeVisible();", expr)}
	case ir.ToolAssertElementVisible:
		if !HasValidChosenLocator(rec) {
			g.fail("Assertion step %d missing valid chosenLocator", step.Index)
			return todo(step, "No valid locator")
		}
		return []string{
			fmt.Sprintf("  const %s = %s;", v, rec.Element.ChosenLocator.Code),
			fmt.Sprintf("  await expect(%s).toHaveCount(1);", v),
			fmt.Sprintf("  await expect(%s).toBeVisible();", v),
		}
	}
	return nil
}

func (g *generation) actionStep(step spec.Step) []string {
	recs := g.recordsFor(step, func(ir.ActionRecord) bool { return true })
	if len(recs) == 0 {
		if rec, ok := g.fallbackRecord(step); ok {
			recs = []ir.ActionRecord{rec}
		}
	}
	if len(recs) == 0 {
		g.fail("Cannot generate code for step %d: %q", step.Index, step.Text)
		return todo(step, "No IR record found")
	}

	var lines []string
	n := 0
	for _, rec := range recs {
		switch {
		case ir.IsRuntimeOnlyTool(rec.ToolName):
			continue
		case ir.IsAssertionTool(rec.ToolName):
			n++
			lines = append(lines, g.assertion(step, rec, n)...)
		default:
			lines = append(lines, g.action(step, rec)...)
		}
	}
	return lines
}

// action emits the statement for one recorded action. The record's tool
// alone decides the code shape.
func (g *generation) action(step spec.Step, rec ir.ActionRecord) []string {
	if rec.ToolName == ir.ToolNavigate {
		target := rec.InputString("url")
		if target == "" {
			g.fail("Navigate action at step %d has no url", step.Index)
			return todo(step, "Navigation target missing")
		}
		return []string{g.navigate(step, target)}
	}

	if !ir.IsElementTargetingTool(rec.ToolName) {
		g.fail("Unsupported tool %q at step %d", rec.ToolName, step.Index)
		return todo(step, "Unsupported tool "+sanitizeComment(string(rec.ToolName)))
	}
	if !HasValidChosenLocator(rec) {
		g.fail("%s action at step %d missing valid chosenLocator", rec.ToolName, step.Index)
		return todo(step, "No valid locator")
	}
	loc := rec.Element.ChosenLocator.Code

	switch rec.ToolName {
	case ir.ToolClick:
		return []string{fmt.Sprintf("  await %s.click();", loc)}
	case ir.ToolFill:
		value, ok := g.fillValue(step, rec)
		if !ok {
			g.fail("Fill action at step %d has no recoverable value", step.Index)
			return todo(step, "Fill value unavailable")
		}
		return []string{fmt.Sprintf("  await %s.fill(%s);", loc, value)}
	case ir.ToolSelectOption:
		label := rec.InputString("label")
		if label == "" {
			label, _ = parseSelectStep(step.Text)
		}
		if label == "" {
			g.fail("Select action at step %d has no option label", step.Index)
			return todo(step, "Option label unavailable")
		}
		return []string{fmt.Sprintf("  await %s.selectOption({ label: '%s' });", loc, locator.EscapeJS(label))}
	case ir.ToolAssertElementVisible:
		return g.assertion(step, rec, 1)
	}
	return nil
}

// fillValue returns the JavaScript expression to fill with. Variable
// references win over literals: the recorded template variable, then the
// first placeholder of the raw step, then the recorded literal, then the
// literal parsed from the step text.
func (g *generation) fillValue(step spec.Step, rec ir.ActionRecord) (string, bool) {
	kind, value, hasValue := rec.FillValue()
	if hasValue && kind == ir.FillTemplateVar {
		return g.useVar(value), true
	}
	if sv, ok := g.stepVars[step.Index]; ok && len(sv.names) > 0 {
		return g.useVar(sv.names[0]), true
	}
	if hasValue && kind == ir.FillLiteral {
		return "'" + locator.EscapeJS(value) + "'", true
	}
	if parsed, ok := parseFillStep(step.Text); ok && parsed.value != "" {
		return "'" + locator.EscapeJS(parsed.value) + "'", true
	}
	return "", false
}

// useVar returns the JavaScript expression for a template variable and
// declares what it needs at the top of the file. A one-time code is derived
// from its secret when the test runs.
func (g *generation) useVar(name string) string {
	switch name {
	case "BASE_URL":
		return "baseUrl"
	case "LOGIN_BASE_URL":
		g.needsLogin = true
		return "loginBaseUrl"
	case vars.TOTPVar:
		g.needsTOTP = true
		g.envVars[vars.TOTPSecretVar] = true
		return "totp(" + constName(vars.TOTPSecretVar) + ")"
	}
	g.envVars[name] = true
	return constName(name)
}

// jsString returns s as a JavaScript string expression. Placeholders become
// interpolations of their constants.
func (g *generation) jsString(s string) string {
	locs := vars.Pattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return "'" + locator.EscapeJS(s) + "'"
	}
	var b strings.Builder
	b.WriteString("`")
	last := 0
	for _, loc := range locs {
		b.WriteString(templateEscaper.Replace(s[last:loc[0]]))
		b.WriteString("${" + g.useVar(s[loc[2]:loc[3]]) + "}")
		last = loc[1]
	}
	b.WriteString(templateEscaper.Replace(s[last:]))
	b.WriteString("`")
	return b.String()
}

var templateEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "${", `\${`, "\n", `\n`, "\r", `\r`)

var leadingVar = regexp.MustCompile(`^\{\{\s*([A-Z0-9_]+)\s*\}\}([/?#].*)?$`)

// rawNavigateTarget returns the unrendered target of a navigation step when
// it contains placeholders.
func (g *generation) rawNavigateTarget(step spec.Step) (string, bool) {
	sv, ok := g.stepVars[step.Index]
	if !ok {
		return "", false
	}
	raw, ok := parseNavigateStep(sv.rawText)
	if !ok || len(vars.Names(raw)) == 0 {
		return "", false
	}
	return raw, true
}

// navigate emits a goto for a recorded URL. Placeholders in the raw step
// win over the same-origin rewrite so rendered values never reach the file.
func (g *generation) navigate(step spec.Step, target string) string {
	if raw, ok := g.rawNavigateTarget(step); ok {
		if m := leadingVar.FindStringSubmatch(raw); m != nil {
			base := g.useVar(m[1])
			if m[2] == "" {
				return fmt.Sprintf("  await page.goto(%s);", base)
			}
			return gotoURL(g.jsString(m[2]), base)
		}
		return fmt.Sprintf("  await page.goto(%s);", g.jsString(raw))
	}
	if !isAbsoluteHTTP(target) {
		return gotoRelative(target, "baseUrl")
	}
	if rel, ok := relativeTo(target, g.baseURL); ok {
		return gotoRelative(rel, "baseUrl")
	}
	if rel, ok := relativeTo(target, g.loginBaseURL); ok {
		g.needsLogin = true
		return gotoRelative(rel, "loginBaseUrl")
	}
	return fmt.Sprintf("  await page.goto('%s');", locator.EscapeJS(target))
}

func gotoRelative(rel, base string) string {
	return gotoURL("'"+locator.EscapeJS(rel)+"'", base)
}

func gotoURL(relExpr, base string) string {
	return fmt.Sprintf("  await page.goto(new URL(%s, %s).toString());", relExpr, base)
}

func isAbsoluteHTTP(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// relativeTo returns the path, query and fragment of target when it has the
// same origin as base.
func relativeTo(target, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	t, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return "", false
	}
	if !strings.EqualFold(t.Scheme, b.Scheme) || origin(t) != origin(b) {
		return "", false
	}
	rel := t.EscapedPath()
	if rel == "" {
		rel = "/"
	}
	if t.RawQuery != "" {
		rel += "?" + t.RawQuery
	}
	if t.Fragment != "" {
		rel += "#" + t.EscapedFragment()
	}
	return rel, true
}

func origin(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port == "" && strings.EqualFold(u.Scheme, "http"):
		port = "80"
	case port == "" && strings.EqualFold(u.Scheme, "https"):
		port = "443"
	}
	return strings.ToLower(u.Scheme) + "://" + host + ":" + port
}

// stepComment restates a step without leaking rendered secrets: placeholders
// from the raw spec become environment variable names, and same-origin
// navigation targets become relative paths.
func (g *generation) stepComment(step spec.Step) string {
	if sv, ok := g.stepVars[step.Index]; ok && len(sv.names) > 0 {
		return sanitizeComment(vars.Pattern.ReplaceAllString(sv.rawText, g.envPrefix+"$1"))
	}
	if target, ok := parseNavigateStep(step.Text); ok && isAbsoluteHTTP(target) {
		if rel, ok := relativeTo(target, g.baseURL); ok {
			return "Navigate to " + sanitizeComment(rel)
		}
		if rel, ok := relativeTo(target, g.loginBaseURL); ok {
			return "Navigate to " + sanitizeComment(rel)
		}
	}
	return sanitizeComment(step.Text)
}

func sanitizeComment(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// render assembles the file.
func (g *generation) render(testName string) string {
	var b strings.Builder
	b.WriteString("import { test, expect } from '@playwright/test'\n")
	helpers := "loadEnvFiles, getEnvVar"
	if g.needsTOTP {
		helpers += ", totp"
	}
	b.WriteString("import { " + helpers + " } from './" + strings.TrimSuffix(EnvHelperFile, ".ts") + "'\n")
	b.WriteString("\n")
	b.WriteString("loadEnvFiles()\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "const baseUrl = getEnvVar('%sBASE_URL')\n", g.envPrefix)
	if g.needsLogin {
		fmt.Fprintf(&b, "const loginBaseUrl = getEnvVar('%sLOGIN_BASE_URL')\n", g.envPrefix)
	}
	names := make([]string, 0, len(g.envVars))
	for name := range g.envVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "const %s = getEnvVar('%s%s')\n", constName(name), g.envPrefix, name)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "test('%s', async ({ page }) => {\n", locator.EscapeJS(testName))
	for _, line := range g.body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("})\n")
	return b.String()
}

// TestName derives the test title from the spec file name.
func TestName(specPath string) string {
	base := path.Base(strings.ReplaceAll(specPath, `\`, "/"))
	if ext := path.Ext(base); strings.EqualFold(ext, ".md") {
		base = strings.TrimSuffix(base, ext)
	}
	name := strings.ReplaceAll(base, "-", " ")
	if strings.TrimSpace(name) == "" || name == "." || name == "/" {
		return "Exported Test"
	}
	return name
}
