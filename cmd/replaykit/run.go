package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/copyleftdev/replaykit/internal/runs"
	"github.com/copyleftdev/replaykit/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportAfterRun bool

var runCmd = &cobra.Command{
	Use:   "run <run.json>",
	Short: "Execute a run file in a local browser",
	Long: `Executes the actions of a run file, shaped like the body of POST /api/v1/runs,
in a local headless browser and prints the finished run. With --export a
successful run is exported right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&exportAfterRun, "export", false, "Export the run as a test when it succeeds")
}

func readRunFile(path string) (server.SubmitRunRequest, error) {
	var req server.SubmitRunRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	req, err := readRunFile(args[0])
	if err != nil {
		return err
	}
	run, err := server.BuildRun(req, a.vars)
	if err != nil {
		return err
	}

	runManager, err := a.newRunManager()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout)
		defer cancel()
		if err := runManager.Shutdown(ctx); err != nil {
			a.logger.Warn("Run manager shutdown failed", zap.Error(err))
		}
	}()

	if err := runManager.SubmitRun(run); err != nil {
		return err
	}
	done, err := runManager.WaitRun(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, done); err != nil {
		return err
	}
	if done.Status != runs.StatusCompleted {
		return fmt.Errorf("run %s %s", done.ID, done.Status)
	}
	if !exportAfterRun {
		return nil
	}

	res := a.newExporter().Export(cmd.Context(), export.Request{
		Cwd:          a.workDir,
		RunID:        done.ID.String(),
		SpecPath:     done.SpecPath,
		Spec:         done.Spec,
		BaseURL:      done.BaseURL,
		LoginBaseURL: done.LoginBaseURL,
		RawSpec:      run.RawSpec,
	})
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	return res.Err()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
