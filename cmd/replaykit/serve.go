package main

import (
	"context"

	"github.com/copyleftdev/replaykit/internal/browser"
	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/copyleftdev/replaykit/internal/fingerprint"
	"github.com/copyleftdev/replaykit/internal/locator"
	"github.com/copyleftdev/replaykit/internal/runs"
	"github.com/copyleftdev/replaykit/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Starts the HTTP API that accepts runs, executes them in a headless browser and exports finished runs as tests.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func (a *app) newRunner() *runs.Runner {
	return runs.NewRunner(runs.RunnerOptions{
		Cwd:                   a.workDir,
		Recording:             a.cfg.Recording.Enabled,
		ProbeTimeout:          a.cfg.Recording.ProbeTimeout,
		MaxValidationFailures: a.cfg.Recording.MaxValidationFailures,
		Matcher:               fingerprint.Matcher{Threshold: a.cfg.Matching.AgreementThreshold},
		Generator:             locator.Generator{NameMax: a.cfg.Matching.RoleNameMaxLen},
		TextMax:               a.cfg.Matching.TextSnippetMaxLen,
		ActionTimeout:         a.cfg.Browser.ActionTimeout,
		Logger:                a.logger,
	})
}

func (a *app) newExporter() *export.Exporter {
	return export.New(export.Options{
		Dir:              a.cfg.Export.Dir,
		EnvPrefix:        a.cfg.Export.EnvPrefix,
		AllowTodoMarkers: a.cfg.Export.AllowTodoMarkers,
		Logger:           a.logger,
	})
}

// newRunManager starts a browser manager and a run manager on top of it.
func (a *app) newRunManager() (*runs.Manager, error) {
	bm, err := browser.NewManager(&a.cfg.Browser, a.newRunner(), a.logger)
	if err != nil {
		return nil, err
	}
	return runs.NewManager(bm, a.logger), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	logger := a.logger
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.Int("port", a.cfg.Server.Port),
		zap.String("work_dir", a.workDir),
		zap.Int("max_sessions", a.cfg.Browser.MaxSessions),
		zap.Bool("recording", a.cfg.Recording.Enabled),
		zap.Int("vars", len(a.vars)),
	)

	runManager, err := a.newRunManager()
	if err != nil {
		return err
	}

	srv := server.NewServer(a.cfg, server.Deps{
		Runs:     runManager,
		Exporter: a.newExporter(),
		WorkDir:  a.workDir,
		Vars:     a.vars,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-cmd.Context().Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := runManager.Shutdown(ctx); err != nil {
		logger.Error("Run manager shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
