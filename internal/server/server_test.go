package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/copyleftdev/replaykit/internal/config"
	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/recorder"
	"github.com/copyleftdev/replaykit/internal/runs"
	"github.com/copyleftdev/replaykit/internal/runs/mocks"
	"github.com/copyleftdev/replaykit/internal/spec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	runs    *runs.Manager
	exec    *mocks.MockExecutor
	workDir string
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	exec := mocks.NewMockExecutor()
	manager := runs.NewManager(exec, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	workDir := t.TempDir()
	cfg := &config.Config{Security: config.SecurityConfig{AllowedOrigins: []string{"*"}, ApiKey: apiKey}}
	srv := NewServer(cfg, Deps{
		Runs:     manager,
		Exporter: export.New(export.Options{}),
		WorkDir:  workDir,
		Vars:     map[string]string{"BASE_URL": "https://example.com", "PASSWORD": "hunter2"},
	}, nil)
	return &testServer{handler: srv.Handler(), runs: manager, exec: exec, workDir: workDir}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) submit(t *testing.T, req SubmitRunRequest) uuid.UUID {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/runs", req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp SubmitRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, err := uuid.Parse(resp.RunID)
	require.NoError(t, err)
	return id
}

func (s *testServer) wait(t *testing.T, id uuid.UUID) *runs.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	run, err := s.runs.WaitRun(ctx, id)
	require.NoError(t, err)
	return run
}

func homeRequest() SubmitRunRequest {
	return SubmitRunRequest{
		SpecPath: "specs/home.md",
		Spec: spec.Spec{Steps: []spec.Step{
			{Index: 1, Text: "Navigate to {{BASE_URL}}/", Kind: spec.KindAction},
			{Index: 2, Text: "Click 'Sign in'", Kind: spec.KindAction},
		}},
		Actions: []runs.Action{
			{Tool: ir.ToolNavigate, URL: "{{BASE_URL}}/", StepIndex: ir.IntPtr(1)},
			{Tool: ir.ToolClick, StepIndex: ir.IntPtr(2)},
		},
	}
}

func writeRecords(t *testing.T, workDir string, runID uuid.UUID, records ...ir.ActionRecord) {
	t.Helper()
	w := recorder.NewWriter(workDir, runID.String())
	for _, rec := range records {
		rec.RunID = runID.String()
		rec.SpecPath = "specs/home.md"
		require.NoError(t, w.Write(rec))
	}
}

func navigateRecord() ir.ActionRecord {
	return ir.ActionRecord{
		StepIndex: ir.IntPtr(1),
		ToolName:  ir.ToolNavigate,
		ToolInput: map[string]any{"url": "https://example.com/"},
		Outcome:   ir.Outcome{OK: true},
	}
}

func clickRecord(withLocator bool) ir.ActionRecord {
	rec := ir.ActionRecord{
		StepIndex: ir.IntPtr(2),
		ToolName:  ir.ToolClick,
		ToolInput: map[string]any{"target": "role=button[name=Sign in]"},
		Outcome:   ir.Outcome{OK: true},
	}
	if withLocator {
		rec.Element = &ir.ElementRecord{ChosenLocator: &ir.LocatorCandidate{
			Kind: ir.KindRole,
			Code: "page.getByRole('button', { name: 'Sign in' })",
		}}
	}
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "key")
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, "key")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/runs", nil, "X-API-Key", "nope").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/runs", nil, "X-API-Key", "key").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/runs", nil, "Authorization", "Bearer key").Code)
}

func TestSubmitRun_Validation(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noPath := homeRequest()
	noPath.SpecPath = ""
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/runs", noPath).Code)

	noActions := homeRequest()
	noActions.Actions = nil
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/runs", noActions).Code)

	unknownVar := homeRequest()
	unknownVar.Spec.Steps[1].Text = "Fill 'Token' with {{API_TOKEN}}"
	rec = s.do(t, http.MethodPost, "/api/v1/runs", unknownVar)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "API_TOKEN")

	assert.Empty(t, s.exec.ExecutedRuns())
}

func TestSubmitAndGetRun(t *testing.T) {
	s := newTestServer(t, "")
	req := homeRequest()
	req.Spec.Steps[1].Text = "Fill 'Password' with {{PASSWORD}}"
	id := s.submit(t, req)
	s.wait(t, id)

	rec := s.do(t, http.MethodGet, "/api/v1/runs/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, "https://example.com", run.BaseURL)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	executed := s.exec.ExecutedRuns()
	require.Len(t, executed, 1)
	assert.Equal(t, "hunter2", executed[0].Vars["PASSWORD"])
	assert.Contains(t, executed[0].RawSpec, "1. Navigate to {{BASE_URL}}/")

	rec = s.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestSubmitRun_BaseURLOverride(t *testing.T) {
	s := newTestServer(t, "")
	req := homeRequest()
	req.BaseURL = "http://localhost:3000"
	req.LoginBaseURL = "http://localhost:4000"
	run := s.wait(t, s.submit(t, req))

	assert.Equal(t, "http://localhost:3000", run.BaseURL)
	assert.Equal(t, "http://localhost:4000", run.LoginBaseURL)
}

func TestGetRun_Errors(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/export", nil).Code)
}

func TestRecordsAndExport(t *testing.T) {
	s := newTestServer(t, "")
	id := s.submit(t, homeRequest())
	s.wait(t, id)
	base := "/api/v1/runs/" + id.String()

	rec := s.do(t, http.MethodGet, base+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, base+"/exportable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exportable":false,"reason":"No IR records found for spec"}`, rec.Body.String())

	writeRecords(t, s.workDir, id, navigateRecord(), clickRecord(true))

	rec = s.do(t, http.MethodGet, base+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []ir.ActionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	rec = s.do(t, http.MethodGet, base+"/exportable", nil)
	assert.JSONEq(t, `{"exportable":true}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res export.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "tests/replaykit/specs-home.spec.ts", res.RelativePath)

	data, err := os.ReadFile(res.ExportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "await page.goto(new URL('/', baseUrl).toString());")
	assert.Contains(t, string(data), "await page.getByRole('button', { name: 'Sign in' }).click();")
}

func TestExport_Failure(t *testing.T) {
	s := newTestServer(t, "")
	id := s.submit(t, homeRequest())
	s.wait(t, id)
	writeRecords(t, s.workDir, id, navigateRecord(), clickRecord(false))

	rec := s.do(t, http.MethodPost, "/api/v1/runs/"+id.String()+"/export", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var res export.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.OK)
	assert.Equal(t, "Export failed: 1 action(s) missing valid chosenLocator", res.Reason)
	assert.Equal(t, []string{"click at step 2"}, res.MissingLocators)
}

func TestExport_RunNotFinishedAndCancel(t *testing.T) {
	s := newTestServer(t, "")
	release := s.exec.Block()
	defer release()
	id := s.submit(t, homeRequest())
	base := "/api/v1/runs/" + id.String()

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/export", nil).Code)

	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, base+"/cancel", nil).Code)
	run := s.wait(t, id)
	assert.Equal(t, runs.StatusCancelled, run.Status)
}
