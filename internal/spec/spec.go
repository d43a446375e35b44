// Package spec holds an already-parsed test specification: preconditions and
// an ordered list of steps, each an action or an assertion.
package spec

import (
	"errors"
	"fmt"
	"strings"
)

// StepKind classifies a step.
type StepKind string

const (
	KindAction    StepKind = "action"
	KindAssertion StepKind = "assertion"
)

// Step is one ordered instruction. Index is 1-based.
type Step struct {
	Index int      `json:"index"`
	Text  string   `json:"text"`
	Kind  StepKind `json:"kind"`
}

// Spec is a structured test specification.
type Spec struct {
	Preconditions []string `json:"preconditions"`
	Steps         []Step   `json:"steps"`
}

// Validate checks the invariants the exporter relies on.
func (s Spec) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("spec has no steps")
	}
	seen := make(map[int]bool, len(s.Steps))
	for _, st := range s.Steps {
		if st.Index <= 0 {
			return fmt.Errorf("step %q has invalid index %d", st.Text, st.Index)
		}
		if seen[st.Index] {
			return fmt.Errorf("duplicate step index %d", st.Index)
		}
		seen[st.Index] = true
		if st.Kind != KindAction && st.Kind != KindAssertion {
			return fmt.Errorf("step %d has unknown kind %q", st.Index, st.Kind)
		}
	}
	return nil
}

// Step returns the step with the given index.
func (s Spec) Step(index int) (Step, bool) {
	for _, st := range s.Steps {
		if st.Index == index {
			return st, true
		}
	}
	return Step{}, false
}

// Map returns a copy of s with fn applied to every precondition and step
// text. The first error stops the mapping.
func (s Spec) Map(fn func(string) (string, error)) (Spec, error) {
	out := Spec{
		Preconditions: make([]string, 0, len(s.Preconditions)),
		Steps:         make([]Step, 0, len(s.Steps)),
	}
	for _, p := range s.Preconditions {
		m, err := fn(p)
		if err != nil {
			return Spec{}, err
		}
		out.Preconditions = append(out.Preconditions, m)
	}
	for _, st := range s.Steps {
		m, err := fn(st.Text)
		if err != nil {
			return Spec{}, fmt.Errorf("step %d: %w", st.Index, err)
		}
		st.Text = m
		out.Steps = append(out.Steps, st)
	}
	return out, nil
}

// Markdown renders s as a spec document with "## Preconditions" and
// "## Steps" sections. Assertion steps are written the same way as actions.
func (s Spec) Markdown(title string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	if len(s.Preconditions) > 0 {
		b.WriteString("## Preconditions\n")
		for _, p := range s.Preconditions {
			b.WriteString("- " + p + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("## Steps\n")
	for _, st := range s.Steps {
		fmt.Fprintf(&b, "%d. %s\n", st.Index, strings.Join(strings.Fields(st.Text), " "))
	}
	return b.String()
}
