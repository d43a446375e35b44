package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/copyleftdev/replaykit/internal/ir"
	"github.com/copyleftdev/replaykit/internal/runs"
	"github.com/copyleftdev/replaykit/internal/spec"
	"github.com/copyleftdev/replaykit/internal/vars"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type APIHandler struct {
	runManager *runs.Manager
	exporter   *export.Exporter
	workDir    string
	vars       map[string]string
	logger     *zap.Logger
}

func NewAPIHandler(deps Deps, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		runManager: deps.Runs,
		exporter:   deps.Exporter,
		workDir:    deps.WorkDir,
		vars:       deps.Vars,
		logger:     logger,
	}
}

type SubmitRunRequest struct {
	SpecPath string        `json:"specPath"`
	Spec     spec.Spec     `json:"spec"`
	Actions  []runs.Action `json:"actions"`
	// RawSpec is the spec document as written. It defaults to the
	// structured spec rendered as Markdown.
	RawSpec      string `json:"rawSpec,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty"`
	LoginBaseURL string `json:"loginBaseUrl,omitempty"`
	CallbackURL  string `json:"callbackUrl,omitempty"`
}

type SubmitRunResponse struct {
	RunID string `json:"runId"`
}

type ExportableResponse struct {
	Exportable bool   `json:"exportable"`
	Reason     string `json:"reason,omitempty"`
}

func (h *APIHandler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	defer r.Body.Close()

	run, err := BuildRun(req, h.vars)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := h.runManager.SubmitRun(run); err != nil {
		if errors.Is(err, runs.ErrShuttingDown) {
			h.respondError(w, http.StatusServiceUnavailable, "%v", err)
			return
		}
		h.logger.Error("Error submitting run", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to submit run: %v", err)
		return
	}

	h.logger.Info("Submitted new run", zap.String("run_id", run.ID.String()), zap.String("spec", run.SpecPath))
	h.respondJSON(w, http.StatusAccepted, SubmitRunResponse{RunID: run.ID.String()})
}

// BuildRun validates req and turns it into a pending run. values are the
// template variables the run renders with; the request's base URLs override
// BASE_URL and LOGIN_BASE_URL.
func BuildRun(req SubmitRunRequest, values map[string]string) (*runs.Run, error) {
	if strings.TrimSpace(req.SpecPath) == "" {
		return nil, errors.New("specPath is required")
	}
	if len(req.Actions) == 0 {
		return nil, errors.New("run must contain at least one action")
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}

	merged := make(map[string]string, len(values)+2)
	for k, v := range values {
		merged[k] = v
	}
	if req.BaseURL != "" {
		merged["BASE_URL"] = req.BaseURL
	}
	if req.LoginBaseURL != "" {
		merged["LOGIN_BASE_URL"] = req.LoginBaseURL
	}
	// Every placeholder in the spec must resolve before anything runs.
	if _, err := req.Spec.Map(func(s string) (string, error) { return vars.Render(s, merged) }); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}

	run := runs.NewRun(req.SpecPath, req.Spec, req.Actions)
	run.RawSpec = req.RawSpec
	if run.RawSpec == "" {
		run.RawSpec = req.Spec.Markdown(export.TestName(req.SpecPath))
	}
	run.BaseURL = merged["BASE_URL"]
	run.LoginBaseURL = merged["LOGIN_BASE_URL"]
	run.CallbackURL = req.CallbackURL
	run.Vars = merged
	return run, nil
}

func (h *APIHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runManager.ListRuns())
}

func (h *APIHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runManager.GetRun(runID)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func (h *APIHandler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	if err := h.runManager.CancelRun(runID); err != nil {
		h.respondRunError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"message": "Cancellation requested"})
}

func (h *APIHandler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	if _, err := h.runManager.GetRun(runID); err != nil {
		h.respondRunError(w, err)
		return
	}
	records, err := export.RunRecords(h.workDir, runID.String())
	if err != nil {
		h.logger.Error("Error reading trace log", zap.String("run_id", runID.String()), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read IR file: %v", err)
		return
	}
	if records == nil {
		records = []ir.ActionRecord{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *APIHandler) HandleExportable(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runManager.GetRun(runID)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	exportable, reason := export.IsExportable(h.workDir, runID.String(), run.SpecPath)
	h.respondJSON(w, http.StatusOK, ExportableResponse{Exportable: exportable, Reason: reason})
}

func (h *APIHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.runManager.Finished(runID)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	res := h.exporter.Export(r.Context(), export.Request{
		Cwd:          h.workDir,
		RunID:        run.ID.String(),
		SpecPath:     run.SpecPath,
		Spec:         run.Spec,
		BaseURL:      run.BaseURL,
		LoginBaseURL: run.LoginBaseURL,
		RawSpec:      run.RawSpec,
	})
	if !res.OK {
		h.respondJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *APIHandler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid run ID format: %v", err)
		return uuid.Nil, false
	}
	return runID, true
}

func (h *APIHandler) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runs.ErrRunNotFound):
		h.respondError(w, http.StatusNotFound, "Run not found")
	case errors.Is(err, runs.ErrRunNotFinished):
		h.respondError(w, http.StatusConflict, "%v", err)
	default:
		h.logger.Error("Run manager error", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "%v", err)
	}
}

// --- Helper Functions ---

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Error marshalling JSON response", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		h.logger.Warn("Error writing JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	errorMessage := fmt.Sprintf(format, args...)
	jsonResponse, err := json.Marshal(map[string]string{"error": errorMessage})
	if err != nil {
		h.logger.Error("Error marshalling JSON error response", zap.Error(err))
		jsonResponse = []byte(`{"error":"internal error"}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(jsonResponse); err != nil {
		h.logger.Warn("Error writing error response", zap.Error(err))
	}
}
