package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/page"
	"github.com/copyleftdev/replaykit/internal/page/mocks"
	"github.com/copyleftdev/replaykit/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver acts on a FakePage and remembers what it was asked to do.
type fakeDriver struct {
	*mocks.FakePage

	mu    sync.Mutex
	calls []string
}

func (d *fakeDriver) log(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) target(ctx context.Context, q page.Query) error {
	n, err := d.Count(ctx, q)
	if err != nil {
		return err
	}
	if n != 1 {
		return page.ErrNoElement
	}
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.log("navigate %s", url)
	d.SetURL(url)
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, q page.Query) error {
	if err := d.target(ctx, q); err != nil {
		return err
	}
	d.log("click %s", q.Value)
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, q page.Query, text string) error {
	if err := d.target(ctx, q); err != nil {
		return err
	}
	d.log("fill %s %s", q.Value, text)
	return nil
}

func (d *fakeDriver) SelectOption(ctx context.Context, q page.Query, label string) error {
	if err := d.target(ctx, q); err != nil {
		return err
	}
	d.log("select %s %s", q.Value, label)
	return nil
}

func (d *fakeDriver) Scroll(ctx context.Context, pixels int) error {
	d.log("scroll %d", pixels)
	return nil
}

func loginDriver() *fakeDriver {
	user := mocks.NewElement("input", map[string]string{"id": "user-name", "data-test": "username", "placeholder": "Username", "type": "text"}, "")
	pass := mocks.NewElement("input", map[string]string{"id": "password", "data-test": "password", "placeholder": "Password", "type": "password"}, "")
	btn := mocks.NewElement("button", map[string]string{"id": "login-button", "data-test": "login-button", "type": "submit"}, "Login")
	hiddenTitle := mocks.NewElement("span", nil, "Products")
	hiddenTitle.Hidden = true
	title := mocks.NewElement("span", map[string]string{"class": "title"}, "Products")

	p := mocks.NewFakePage("about:blank").
		On(page.CSS("#user-name"), user).
		On(page.Query{Strategy: page.ByTestID, Value: "username"}, user).
		On(page.CSS("#password"), pass).
		On(page.Query{Strategy: page.ByTestID, Value: "password"}, pass).
		On(page.CSS("#login-button"), btn).
		On(page.Query{Strategy: page.ByTestID, Value: "login-button"}, btn).
		On(page.Query{Strategy: page.ByText, Value: "Products"}, hiddenTitle, title)
	return &fakeDriver{FakePage: p}
}

func loginRun() *Run {
	steps := []spec.Step{
		{Index: 1, Text: "Navigate to {{BASE_URL}}/", Kind: spec.KindAction},
		{Index: 2, Text: "Fill 'Username' with {{USERNAME}}", Kind: spec.KindAction},
		{Index: 3, Text: "Fill 'Password' with {{PASSWORD}}", Kind: spec.KindAction},
		{Index: 4, Text: "Click the 'Login' button", Kind: spec.KindAction},
		{Index: 5, Text: "The page shows 'Products'", Kind: spec.KindAssertion},
	}
	run := NewRun("specs/login.md", spec.Spec{Steps: steps}, []Action{
		{Tool: ir.ToolNavigate, URL: "{{BASE_URL}}/", StepIndex: ir.IntPtr(1)},
		{Tool: ir.ToolFill, Target: &page.Query{Strategy: page.ByCSS, Value: "#user-name"}, Text: "{{USERNAME}}", StepIndex: ir.IntPtr(2)},
		{Tool: ir.ToolFill, Target: &page.Query{Strategy: page.ByCSS, Value: "#password"}, Text: "{{PASSWORD}}", StepIndex: ir.IntPtr(3)},
		{Tool: ir.ToolClick, Target: &page.Query{Strategy: page.ByCSS, Value: "#login-button"}, StepIndex: ir.IntPtr(4)},
		{Tool: ir.ToolAssertTextPresent, Text: "Products", StepIndex: ir.IntPtr(5)},
	})
	run.RawSpec = run.Spec.Markdown("Login")
	run.BaseURL = "https://www.saucedemo.com"
	run.Vars = map[string]string{
		"BASE_URL": "https://www.saucedemo.com",
		"USERNAME": "standard_user",
		"PASSWORD": "secret_sauce",
	}
	return run
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
}

func TestRunner_ExecuteRecordsEveryAction(t *testing.T) {
	cwd := t.TempDir()
	d := loginDriver()
	run := loginRun()
	runner := NewRunner(RunnerOptions{Cwd: cwd, Recording: true, Now: fixedNow})

	var progress []int
	res, err := runner.Execute(context.Background(), d, run, func(i int) { progress = append(progress, i) })
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.ActionsRun)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, progress)
	assert.Equal(t, ".replaykit/runs/"+run.ID.String()+"/ir.jsonl", res.TracePath)
	assert.Empty(t, res.ValidationFailures)

	assert.Equal(t, []string{
		"navigate https://www.saucedemo.com/",
		"fill #user-name standard_user",
		"fill #password secret_sauce",
		"click #login-button",
	}, d.Calls())

	recs, err := export.RunRecords(cwd, run.ID.String())
	require.NoError(t, err)
	require.Len(t, recs, 5)

	assert.Equal(t, "https://www.saucedemo.com/", recs[0].InputString("url"))
	assert.Nil(t, recs[0].Element)
	assert.Equal(t, "Navigate to {{BASE_URL}}/", recs[0].StepText)

	kind, name, ok := recs[1].FillValue()
	require.True(t, ok)
	assert.Equal(t, ir.FillTemplateVar, kind)
	assert.Equal(t, "USERNAME", name)
	assert.NotContains(t, recs[1].ToolInput, "text")
	require.NotNil(t, recs[1].Element)
	assert.Equal(t, "page.getByTestId('username')", recs[1].Element.ChosenLocator.Code)

	kind, name, _ = recs[2].FillValue()
	assert.Equal(t, ir.FillTemplateVar, kind)
	assert.Equal(t, "PASSWORD", name)

	require.NotNil(t, recs[3].Element)
	assert.Equal(t, "page.getByTestId('login-button')", recs[3].Element.ChosenLocator.Code)
	assert.Equal(t, fixedNow().UnixMilli(), recs[3].Timestamp)

	nth, ok := recs[4].InputInt("visibleNth")
	require.True(t, ok)
	assert.Equal(t, 1, nth)

	raw, err := os.ReadFile(filepath.Join(cwd, filepath.FromSlash(res.TracePath)))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret_sauce")
	assert.NotContains(t, string(raw), "standard_user")
}

func TestRunner_RecordsPlaceholdersNotValues(t *testing.T) {
	cwd := t.TempDir()
	d := loginDriver()
	d.On(page.Query{Strategy: page.ByText, Value: "Hello standard_user"}, mocks.NewElement("h1", nil, "Hello standard_user"))
	run := NewRun("specs/greet.md", spec.Spec{}, []Action{
		{Tool: ir.ToolClick, Target: &page.Query{Strategy: page.ByTestID, Value: "{{BUTTON_ID}}"}},
		{Tool: ir.ToolAssertTextPresent, Text: "Hello {{USERNAME}}"},
	})
	run.Vars = map[string]string{"BUTTON_ID": "login-button", "USERNAME": "standard_user"}

	res, err := NewRunner(RunnerOptions{Cwd: cwd, Recording: true, Now: fixedNow}).Execute(context.Background(), d, run, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"click login-button"}, d.Calls())

	recs, err := export.RunRecords(cwd, run.ID.String())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "testid={{BUTTON_ID}}", recs[0].InputString("target"))
	assert.Equal(t, "Hello {{USERNAME}}", recs[1].InputString("text"))

	raw, err := os.ReadFile(filepath.Join(cwd, filepath.FromSlash(res.TracePath)))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "standard_user")
}

func TestRunner_StopsAtFailedAction(t *testing.T) {
	cwd := t.TempDir()
	d := loginDriver()
	run := loginRun()
	run.Actions[3].Target = &page.Query{Strategy: page.ByCSS, Value: "#missing"}
	runner := NewRunner(RunnerOptions{Cwd: cwd, Recording: true})

	res, err := runner.Execute(context.Background(), d, run, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, page.ErrNoElement)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ActionsRun)

	recs, err := export.RunRecords(cwd, run.ID.String())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	last := recs[3]
	assert.False(t, last.Outcome.OK)
	assert.Equal(t, "not_found", last.Outcome.ErrorCode)
	assert.Nil(t, last.Element)
}

func TestRunner_UnknownVariableFailsBeforeActing(t *testing.T) {
	cwd := t.TempDir()
	d := loginDriver()
	run := loginRun()
	run.Actions = []Action{{Tool: ir.ToolNavigate, URL: "{{NOPE}}/x", StepIndex: ir.IntPtr(1)}}
	runner := NewRunner(RunnerOptions{Cwd: cwd, Recording: true})

	_, err := runner.Execute(context.Background(), d, run, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown template variables: NOPE")
	assert.Empty(t, d.Calls())

	recs, err := export.RunRecords(cwd, run.ID.String())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRunner_RecordingDisabled(t *testing.T) {
	cwd := t.TempDir()
	run := loginRun()
	runner := NewRunner(RunnerOptions{Cwd: cwd})

	res, err := runner.Execute(context.Background(), loginDriver(), run, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.TracePath)
	assert.NoDirExists(t, filepath.Join(cwd, ".replaykit"))
}

func TestRunner_TOTPVariable(t *testing.T) {
	cwd := t.TempDir()
	code := mocks.NewElement("input", map[string]string{"data-test": "otp"}, "")
	d := &fakeDriver{FakePage: mocks.NewFakePage("https://app.test/").
		On(page.Query{Strategy: page.ByTestID, Value: "otp"}, code)}
	run := NewRun("specs/otp.md", spec.Spec{Steps: []spec.Step{{Index: 1, Text: "Fill 'Code' with {{TOTP}}", Kind: spec.KindAction}}}, []Action{
		{Tool: ir.ToolFill, Target: &page.Query{Strategy: page.ByTestID, Value: "otp"}, Text: "{{TOTP}}", StepIndex: ir.IntPtr(1)},
	})
	run.Vars = map[string]string{"TOTP_SECRET": "JBSWY3DPEHPK3PXP"}
	runner := NewRunner(RunnerOptions{Cwd: cwd, Recording: true, Now: fixedNow})

	_, err := runner.Execute(context.Background(), d, run, nil)
	require.NoError(t, err)
	require.Len(t, d.Calls(), 1)
	assert.Regexp(t, `^fill otp \d{6}$`, d.Calls()[0])

	recs, err := export.RunRecords(cwd, run.ID.String())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	kind, name, _ := recs[0].FillValue()
	assert.Equal(t, ir.FillTemplateVar, kind)
	assert.Equal(t, "TOTP", name)
	assert.Equal(t, "Fill 'Code' with {{TOTP}}", recs[0].StepText)
}

func TestRunner_RuntimeOnlyTools(t *testing.T) {
	d := loginDriver()
	run := NewRun("specs/scroll.md", spec.Spec{}, []Action{
		{Tool: ir.ToolScroll, Pixels: 400},
		{Tool: ir.ToolWait, WaitMS: 1},
	})

	res, err := NewRunner(RunnerOptions{Cwd: t.TempDir()}).Execute(context.Background(), d, run, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ActionsRun)
	assert.Equal(t, []string{"scroll 400"}, d.Calls())
}

func TestRunner_AssertionFailures(t *testing.T) {
	hidden := mocks.NewElement("div", nil, "Sold out")
	hidden.Hidden = true
	d := &fakeDriver{FakePage: mocks.NewFakePage("https://app.test/").
		On(page.Query{Strategy: page.ByText, Value: "Sold out"}, hidden)}
	runner := NewRunner(RunnerOptions{Cwd: t.TempDir()})

	_, err := runner.Execute(context.Background(), d, NewRun("s.md", spec.Spec{}, []Action{
		{Tool: ir.ToolAssertTextPresent, Text: "Sold out"},
	}), nil)
	assert.ErrorIs(t, err, ErrNotVisible)

	_, err = runner.Execute(context.Background(), d, NewRun("s.md", spec.Spec{}, []Action{
		{Tool: ir.ToolAssertElementVisible, Target: &page.Query{Strategy: page.ByCSS, Value: ".cart"}},
	}), nil)
	assert.ErrorIs(t, err, page.ErrNoElement)

	_, err = runner.Execute(context.Background(), d, NewRun("s.md", spec.Spec{}, []Action{
		{Tool: "hover"},
	}), nil)
	assert.ErrorIs(t, err, ErrUnsupportedTool)
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(RunnerOptions{Cwd: t.TempDir()}).Execute(ctx, loginDriver(), loginRun(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, res.ActionsRun)
}

func TestRunner_RecordsExportCleanly(t *testing.T) {
	cwd := t.TempDir()
	run := loginRun()
	_, err := NewRunner(RunnerOptions{Cwd: cwd, Recording: true}).Execute(context.Background(), loginDriver(), run, nil)
	require.NoError(t, err)

	res := export.New(export.Options{}).Export(context.Background(), export.Request{
		Cwd:      cwd,
		RunID:    run.ID.String(),
		SpecPath: run.SpecPath,
		Spec:     run.Spec,
		BaseURL:  run.BaseURL,
		RawSpec:  run.RawSpec,
	})
	require.True(t, res.OK, res.Reason)

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "await page.goto(new URL('/', baseUrl).toString());")
	assert.Contains(t, out, "await page.getByTestId('username').fill(username);")
	assert.Contains(t, out, "await page.getByTestId('password').fill(password);")
	assert.Contains(t, out, "await page.getByTestId('login-button').click();")
	assert.Contains(t, out, "await expect(locator5_1.nth(1)).toBeVisible();")
	assert.NotContains(t, out, "secret_sauce")
}
