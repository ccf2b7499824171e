package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepNowFlag string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one SLA sweep and report the outcome",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepNowFlag, "now", "", "evaluate deadlines against this RFC 3339 instant instead of the wall clock")
}

func runSweep(cmd *cobra.Command, args []string) error {
	now := time.Now().UTC()
	if sweepNowFlag != "" {
		parsed, err := time.Parse(time.RFC3339, sweepNowFlag)
		if err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
		now = parsed.UTC()
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.sla.Sweep(ctx, now)
	if err != nil {
		return err
	}
	rt.logger.Info("sweep finished",
		zap.Time("now", now),
		zap.Int("checked", report.Checked),
		zap.Int("warnings", report.Warnings),
		zap.Int("response_breaches", report.ResponseBreaches),
		zap.Int("resolution_breaches", report.ResolutionBreaches),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed),
	)
	return nil
}
