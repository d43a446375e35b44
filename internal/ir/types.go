package ir

import "strconv"

// ElementFingerprint is a compact attribute snapshot of one DOM element.
// Empty fields are omitted from the JSON form.
type ElementFingerprint struct {
	TagName        string `json:"tagName,omitempty"`
	Role           string `json:"role,omitempty"`
	AccessibleName string `json:"accessibleName,omitempty"`
	ID             string `json:"id,omitempty"`
	NameAttr       string `json:"nameAttr,omitempty"`
	TypeAttr       string `json:"typeAttr,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`
	AriaLabel      string `json:"ariaLabel,omitempty"`
	TestID         string `json:"testId,omitempty"`
	TextSnippet    string `json:"textSnippet,omitempty"`
}

// IsEmpty reports whether no attribute was captured.
func (f ElementFingerprint) IsEmpty() bool {
	return f == ElementFingerprint{}
}

// LocatorKind is the closed set of locator strategies.
type LocatorKind string

const (
	KindTestID      LocatorKind = "getByTestId"
	KindRole        LocatorKind = "getByRole"
	KindLabel       LocatorKind = "getByLabel"
	KindPlaceholder LocatorKind = "getByPlaceholder"
	KindCSSID       LocatorKind = "cssId"
	KindCSSAttr     LocatorKind = "cssAttr"
	KindCSSSelector LocatorKind = "cssSelector"
	KindTextExact   LocatorKind = "textExact"
	KindText        LocatorKind = "text"
)

// LocatorValidation holds the facts observed when a candidate was executed
// against the live page. Nil pointers mean the check was not applicable.
type LocatorValidation struct {
	Unique           bool   `json:"unique"`
	MatchCount       int    `json:"matchCount,omitempty"`
	Visible          *bool  `json:"visible,omitempty"`
	Enabled          *bool  `json:"enabled,omitempty"`
	FingerprintMatch *bool  `json:"fingerprintMatch,omitempty"`
	Error            string `json:"error,omitempty"`
}

// LocatorCandidate is one proposed way of re-finding an element.
type LocatorCandidate struct {
	Kind       LocatorKind       `json:"kind"`
	Value      string            `json:"value"`
	Code       string            `json:"code"`
	Validation LocatorValidation `json:"validation"`
}

// ElementRecord is the element evidence attached to a DOM-targeting action.
type ElementRecord struct {
	Fingerprint       ElementFingerprint `json:"fingerprint"`
	LocatorCandidates []LocatorCandidate `json:"locatorCandidates"`
	ChosenLocator     *LocatorCandidate  `json:"chosenLocator,omitempty"`
}

// ToolName is the action kind actually performed by the driver.
type ToolName string

const (
	ToolNavigate             ToolName = "navigate"
	ToolClick                ToolName = "click"
	ToolFill                 ToolName = "fill"
	ToolSelectOption         ToolName = "select_option"
	ToolScroll               ToolName = "scroll"
	ToolWait                 ToolName = "wait"
	ToolAssertTextPresent    ToolName = "assertTextPresent"
	ToolAssertElementVisible ToolName = "assertElementVisible"
)

var elementTargetingTools = map[ToolName]bool{
	ToolClick:                true,
	ToolFill:                 true,
	ToolSelectOption:         true,
	ToolAssertElementVisible: true,
}

// IsElementTargetingTool reports whether the tool acts on a single element
// and therefore needs a recorded locator.
func IsElementTargetingTool(name ToolName) bool {
	return elementTargetingTools[name]
}

// IsMutatingTool reports whether the tool changes page state through the
// element, which requires the element to be enabled.
func IsMutatingTool(name ToolName) bool {
	switch name {
	case ToolClick, ToolFill, ToolSelectOption:
		return true
	}
	return false
}

// IsAssertionTool reports whether the tool is a read-only check.
func IsAssertionTool(name ToolName) bool {
	return name == ToolAssertTextPresent || name == ToolAssertElementVisible
}

// IsRuntimeOnlyTool reports whether the tool only matters while the agent is
// driving the page and has no replayable equivalent.
func IsRuntimeOnlyTool(name ToolName) bool {
	return name == ToolScroll || name == ToolWait
}

// Outcome is the result of the recorded action.
type Outcome struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// FillValueKind says where a recorded fill value came from.
type FillValueKind string

const (
	FillLiteral     FillValueKind = "literal"
	FillTemplateVar FillValueKind = "template_var"
	FillRedacted    FillValueKind = "redacted"
)

// ActionRecord is one line of a run's trace log. Records are append-only.
type ActionRecord struct {
	RunID     string         `json:"runId"`
	SpecPath  string         `json:"specPath"`
	StepIndex *int           `json:"stepIndex"`
	StepText  string         `json:"stepText,omitempty"`
	ToolName  ToolName       `json:"toolName"`
	ToolInput map[string]any `json:"toolInput"`
	Outcome   Outcome        `json:"outcome"`
	PageURL   string         `json:"pageUrl,omitempty"`
	Element   *ElementRecord `json:"element,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// StepIndexLabel renders the step index for human-readable messages.
func (r ActionRecord) StepIndexLabel() string {
	if r.StepIndex == nil {
		return "unknown step"
	}
	return "step " + strconv.Itoa(*r.StepIndex)
}

// InputString returns a string-valued tool input, or "".
func (r ActionRecord) InputString(key string) string {
	s, _ := r.ToolInput[key].(string)
	return s
}

// InputInt returns a non-negative integer tool input. JSON decoding yields
// float64, so integral floats are accepted.
func (r ActionRecord) InputInt(key string) (int, bool) {
	switch v := r.ToolInput[key].(type) {
	case int:
		return v, v >= 0
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// FillValue decodes the recorded fillValue of a fill action.
func (r ActionRecord) FillValue() (kind FillValueKind, value string, ok bool) {
	raw, isMap := r.ToolInput["fillValue"].(map[string]any)
	if !isMap {
		return "", "", false
	}
	k, _ := raw["kind"].(string)
	switch FillValueKind(k) {
	case FillLiteral:
		v, _ := raw["value"].(string)
		return FillLiteral, v, true
	case FillTemplateVar:
		n, _ := raw["name"].(string)
		return FillTemplateVar, n, n != ""
	case FillRedacted:
		return FillRedacted, "", true
	}
	return "", "", false
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// IsFalse reports whether b is set and false.
func IsFalse(b *bool) bool { return b != nil && !*b }
