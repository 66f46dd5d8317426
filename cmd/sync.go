package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"campuscrawl/internal/runlog"
	"campuscrawl/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [stage]",
		Short: "Run one sync stage (or all of them, in order) and exit",
		Long: `Runs a crawl stage to completion and exits. Without an argument every
stage runs in dependency order. Stages: ` + stageList() + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}
}

func stageList() string {
	names := make([]string, 0, len(syncer.Stages()))
	for _, st := range syncer.Stages() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(args) == 0 || args[0] == "all" {
		runs, err := svc.syncer.RunAll(ctx)
		reportRuns(svc.logger, runs)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if run.Status == runlog.StatusFailed {
				return fmt.Errorf("stage %s failed", run.Stage)
			}
		}
		return nil
	}

	stage, err := syncer.ParseStage(args[0])
	if err != nil {
		return err
	}
	run, err := svc.syncer.Run(ctx, stage)
	reportRuns(svc.logger, []runlog.Run{run})
	if err != nil {
		return err
	}
	if run.Status == runlog.StatusFailed {
		return fmt.Errorf("stage %s failed", run.Stage)
	}
	return nil
}

func reportRuns(logger *zap.Logger, runs []runlog.Run) {
	for _, run := range runs {
		fields := []zap.Field{
			zap.String("stage", run.Stage),
			zap.String("status", string(run.Status)),
			zap.Int("units_total", run.UnitsTotal),
			zap.Int("units_failed", run.UnitsFailed),
		}
		if run.FinishedAt != nil {
			fields = append(fields, zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
		}
		logger.Info("sync run finished", fields...)
	}
}
