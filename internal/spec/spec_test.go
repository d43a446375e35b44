package spec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ok := Spec{Steps: []Step{
		{Index: 1, Text: "Navigate to /", Kind: KindAction},
		{Index: 2, Text: "Verify the page shows 'Products'", Kind: KindAssertion},
	}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Spec{}.Validate())
	assert.Error(t, Spec{Steps: []Step{{Index: 0, Kind: KindAction}}}.Validate())
	assert.Error(t, Spec{Steps: []Step{{Index: 1, Kind: KindAction}, {Index: 1, Kind: KindAction}}}.Validate())
	assert.Error(t, Spec{Steps: []Step{{Index: 1, Kind: "note"}}}.Validate())
}

func TestStep(t *testing.T) {
	s := Spec{Steps: []Step{{Index: 3, Text: "Click 'Go'", Kind: KindAction}}}

	st, found := s.Step(3)
	assert.True(t, found)
	assert.Equal(t, "Click 'Go'", st.Text)

	_, found = s.Step(1)
	assert.False(t, found)
}

func TestMap(t *testing.T) {
	s := Spec{
		Preconditions: []string{"user exists"},
		Steps:         []Step{{Index: 1, Text: "Fill 'User' with x", Kind: KindAction}},
	}
	upper, err := s.Map(func(in string) (string, error) { return strings.ToUpper(in), nil })
	assert.NoError(t, err)
	assert.Equal(t, "USER EXISTS", upper.Preconditions[0])
	assert.Equal(t, "FILL 'USER' WITH X", upper.Steps[0].Text)
	assert.Equal(t, KindAction, upper.Steps[0].Kind)
	assert.Equal(t, "Fill 'User' with x", s.Steps[0].Text)

	boom := errors.New("boom")
	_, err = Spec{Steps: s.Steps}.Map(func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1")
}

func TestMarkdown(t *testing.T) {
	s := Spec{
		Preconditions: []string{"{{USERNAME}} exists"},
		Steps: []Step{
			{Index: 1, Text: "Navigate to {{BASE_URL}}/login", Kind: KindAction},
			{Index: 2, Text: "Page shows\n'Products'", Kind: KindAssertion},
		},
	}
	want := "# Login\n\n## Preconditions\n- {{USERNAME}} exists\n\n## Steps\n1. Navigate to {{BASE_URL}}/login\n2. Page shows 'Products'\n"
	assert.Equal(t, want, s.Markdown("Login"))
}
