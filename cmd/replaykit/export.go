package main

import (
	"errors"
	"os"

	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportRunID   string
	exportRawSpec string
	exportCheck   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <run.json>",
	Short: "Export a recorded run as a Playwright test",
	Long: `Generates a Playwright test from the trace log of a finished run. The run
file supplies the spec, spec path and base URLs; its actions are ignored.
With --check nothing is written and only exportability is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run-id", "", "ID of the recorded run (required)")
	exportCmd.Flags().StringVar(&exportRawSpec, "raw-spec", "", "Path to the spec document as written, used to recover variable references")
	exportCmd.Flags().BoolVar(&exportCheck, "check", false, "Only report whether the run is exportable")
	_ = exportCmd.MarkFlagRequired("run-id")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	req, err := readRunFile(args[0])
	if err != nil {
		return err
	}

	if exportCheck {
		ok, reason := export.IsExportable(a.workDir, exportRunID, req.SpecPath)
		if err := printJSON(cmd, map[string]any{"exportable": ok, "reason": reason}); err != nil {
			return err
		}
		if !ok {
			return errors.New(reason)
		}
		return nil
	}

	raw := req.RawSpec
	if exportRawSpec != "" {
		data, err := os.ReadFile(exportRawSpec)
		if err != nil {
			return err
		}
		raw = string(data)
	}
	if raw == "" {
		raw = req.Spec.Markdown(export.TestName(req.SpecPath))
	}
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = a.vars["BASE_URL"]
	}
	loginBaseURL := req.LoginBaseURL
	if loginBaseURL == "" {
		loginBaseURL = a.vars["LOGIN_BASE_URL"]
	}

	res := a.newExporter().Export(cmd.Context(), export.Request{
		Cwd:          a.workDir,
		RunID:        exportRunID,
		SpecPath:     req.SpecPath,
		Spec:         req.Spec,
		BaseURL:      baseURL,
		LoginBaseURL: loginBaseURL,
		RawSpec:      raw,
	})
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	return res.Err()
}
