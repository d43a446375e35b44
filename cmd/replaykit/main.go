package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/copyleftdev/replaykit/internal/config"
	"github.com/copyleftdev/replaykit/internal/logging"
	"github.com/copyleftdev/replaykit/internal/vars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "replaykit",
	Short: "Record agent-driven browser runs and export them as Playwright tests",
	Long: `replaykit executes browser actions chosen by an agent, records evidence about
every element it touches, and turns a finished run into a deterministic
Playwright test that no longer needs the agent.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml, $HOME/.replaykit, /etc/replaykit)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the configuration shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	workDir string
	vars    map[string]string
}

// loadApp reads config, loads .env files and builds the logger. The server
// logs JSON; the other commands log to the console.
func loadApp(production bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	var logger *zap.Logger
	if production {
		logger, err = logging.New(cfg.Log.Level)
	} else {
		logger, err = logging.NewDevelopment(cfg.Log.Level)
	}
	if err != nil {
		return nil, err
	}

	workDir := cfg.Server.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return nil, err
	}

	envDir := cfg.Vars.EnvDir
	if !filepath.IsAbs(envDir) {
		envDir = filepath.Join(workDir, envDir)
	}
	loaded, err := vars.LoadEnvFiles(envDir, cfg.Vars.EnvName)
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		logger.Debug("Loaded env files", zap.Strings("files", loaded))
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		workDir: workDir,
		vars:    vars.FromEnv(cfg.Export.EnvPrefix, os.Environ()),
	}, nil
}
