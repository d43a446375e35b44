package main

import (
	"context"
	"time"

	"github.com/copyleftdev/replaykit/internal/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured browser can be driven",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		rep, err := browser.Doctor(ctx, &a.cfg.Browser)
		if err != nil {
			a.logger.Error("Browser check failed", zap.Error(err))
			return err
		}
		a.logger.Info("Browser check passed", zap.String("product", rep.Product))
		return printJSON(cmd, rep)
	},
}
