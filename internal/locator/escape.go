package locator

import (
	"regexp"
	"strings"
)

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeJS escapes s for use inside a single-quoted JavaScript string.
func EscapeJS(s string) string {
	return jsEscaper.Replace(s)
}

var cssEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// EscapeCSS escapes s for use inside a double-quoted CSS attribute value.
func EscapeCSS(s string) string {
	return cssEscaper.Replace(s)
}

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// AttrSelector returns `[name="value"]`.
func AttrSelector(name, value string) string {
	return `[` + name + `="` + EscapeCSS(value) + `"]`
}

// IDSelector returns `#id` when id is a plain CSS identifier and an
// attribute selector otherwise.
func IDSelector(id string) string {
	if cssIdent.MatchString(id) {
		return "#" + id
	}
	return AttrSelector("id", id)
}
