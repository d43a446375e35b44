package locator

import (
	"strings"
	"testing"

	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(cs []ir.LocatorCandidate, kind ir.LocatorKind) (ir.LocatorCandidate, bool) {
	for _, c := range cs {
		if c.Kind == kind {
			return c, true
		}
	}
	return ir.LocatorCandidate{}, false
}

func kinds(cs []ir.LocatorCandidate) []ir.LocatorKind {
	out := make([]ir.LocatorKind, len(cs))
	for i, c := range cs {
		out[i] = c.Kind
	}
	return out
}

func TestGenerate_TestID(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TestID: "product-sort-container", TagName: "select"})

	c, ok := find(cs, ir.KindTestID)
	require.True(t, ok)
	assert.Equal(t, "product-sort-container", c.Value)
	assert.Equal(t, "page.getByTestId('product-sort-container')", c.Code)

	var attrs []string
	for _, c := range cs {
		if c.Kind == ir.KindCSSAttr {
			attrs = append(attrs, c.Value)
		}
	}
	assert.Equal(t, []string{
		"data-testid=product-sort-container",
		"data-test-id=product-sort-container",
		"data-test=product-sort-container",
	}, attrs)
	assert.Contains(t, cs, ir.LocatorCandidate{
		Kind:  ir.KindCSSAttr,
		Value: "data-test=product-sort-container",
		Code:  `page.locator('[data-test="product-sort-container"]')`,
	})
}

func TestGenerate_Role(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{Role: "button", AccessibleName: "Submit", TagName: "button"})

	c, ok := find(cs, ir.KindRole)
	require.True(t, ok)
	assert.Equal(t, "button:Submit", c.Value)
	assert.Equal(t, "page.getByRole('button', { name: 'Submit' })", c.Code)
}

func TestGenerate_RoleFallsBackToShortText(t *testing.T) {
	long := strings.Repeat("x", 80)
	cs := Generate(ir.ElementFingerprint{Role: "link", TextSnippet: long, TagName: "a"})

	c, ok := find(cs, ir.KindRole)
	require.True(t, ok)
	assert.Equal(t, "link:"+strings.Repeat("x", 50), c.Value)

	cs = Generator{NameMax: 10}.Generate(ir.ElementFingerprint{Role: "link", TextSnippet: long})
	c, _ = find(cs, ir.KindRole)
	assert.Equal(t, "link:"+strings.Repeat("x", 10), c.Value)
}

func TestGenerate_RoleWithoutNameIsSkipped(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{Role: "button", TagName: "button"})
	assert.Empty(t, cs)
}

func TestGenerate_Label(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TagName: "input", AriaLabel: "Email address"})
	c, ok := find(cs, ir.KindLabel)
	require.True(t, ok)
	assert.Equal(t, "Email address", c.Value)

	cs = Generate(ir.ElementFingerprint{TagName: "textarea", AccessibleName: "Comment"})
	c, ok = find(cs, ir.KindLabel)
	require.True(t, ok)
	assert.Equal(t, "page.getByLabel('Comment')", c.Code)

	cs = Generate(ir.ElementFingerprint{TagName: "div", AccessibleName: "Panel"})
	_, ok = find(cs, ir.KindLabel)
	assert.False(t, ok)
}

func TestGenerate_Placeholder(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TagName: "input", Placeholder: `Say "hi"`})

	assert.Equal(t, []ir.LocatorKind{ir.KindPlaceholder, ir.KindCSSSelector}, kinds(cs))
	assert.Equal(t, `input[placeholder="Say \"hi\""]`, cs[1].Value)
	assert.Equal(t, `page.locator('input[placeholder="Say \\"hi\\""]')`, cs[1].Code)
}

func TestGenerate_ID(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TagName: "button", ID: "submit-btn"})
	c, ok := find(cs, ir.KindCSSID)
	require.True(t, ok)
	assert.Equal(t, "submit-btn", c.Value)
	assert.Equal(t, "page.locator('#submit-btn')", c.Code)

	cs = Generate(ir.ElementFingerprint{ID: "user.name"})
	assert.Equal(t, `page.locator('[id="user.name"]')`, cs[0].Code)
}

func TestGenerate_NameAttr(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TagName: "input", NameAttr: "username"})
	c, ok := find(cs, ir.KindCSSAttr)
	require.True(t, ok)
	assert.Equal(t, "name=username", c.Value)
	assert.Equal(t, `page.locator('[name="username"]')`, c.Code)
}

func TestGenerate_Text(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TagName: "button", TextSnippet: "Click me"})
	assert.Equal(t, []ir.LocatorKind{ir.KindTextExact, ir.KindText}, kinds(cs))
	assert.Equal(t, "page.getByText('Click me', { exact: true })", cs[0].Code)
	assert.Equal(t, "page.getByText('Click me')", cs[1].Code)

	cs = Generate(ir.ElementFingerprint{TagName: "input", TextSnippet: "Some text"})
	_, ok := find(cs, ir.KindText)
	assert.False(t, ok)
}

func TestGenerate_Escaping(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{TestID: "test'id", TagName: "button"})
	c, _ := find(cs, ir.KindTestID)
	assert.Equal(t, `page.getByTestId('test\'id')`, c.Code)

	cs = Generate(ir.ElementFingerprint{TagName: "li", TextSnippet: "line\none"})
	assert.Equal(t, `page.getByText('line\none')`, cs[1].Code)
}

func TestGenerate_Empty(t *testing.T) {
	assert.Empty(t, Generate(ir.ElementFingerprint{}))
}

func TestGenerate_Rich(t *testing.T) {
	cs := Generate(ir.ElementFingerprint{
		TestID:         "login-btn",
		Role:           "button",
		AccessibleName: "Login",
		ID:             "login",
		TextSnippet:    "Login",
		TagName:        "button",
	})

	assert.Equal(t, []ir.LocatorKind{
		ir.KindTestID, ir.KindCSSAttr, ir.KindCSSAttr, ir.KindCSSAttr,
		ir.KindRole, ir.KindCSSID, ir.KindTextExact, ir.KindText,
	}, kinds(cs))
	for _, c := range cs {
		assert.Zero(t, c.Validation)
	}
}

func TestEscapeJS(t *testing.T) {
	assert.Equal(t, `a\\b\'c\nd\re\tf`, EscapeJS("a\\b'c\nd\re\tf"))
}
