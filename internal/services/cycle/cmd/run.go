package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/smartplant/plantcare/internal/services/cycle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one care cycle and exit",
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("plantcare starting", cfg.BannerFields()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	res := a.orchestrator.RunCycle(ctx)
	if res.Status != cycle.StatusCompleted {
		return fmt.Errorf("cycle %s aborted at %s: %w", res.CycleID, res.Stage, res.Err)
	}
	log.Info("cycle complete",
		zap.String("cycle_id", res.CycleID),
		zap.String("actions", res.Record.ActionsTaken))
	return nil
}
