package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"ncrflow/internal/bootstrap"
	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "SLA escalation scheduler",
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan open NCRs and escalate the overdue ones",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *ncr.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		once, _ := cmd.Flags().GetBool("once")
		interval, _ := cmd.Flags().GetDuration("interval")
		if !cmd.Flags().Changed("interval") {
			interval = app.Config.Scheduler.Interval
		}

		runOnce := func() error {
			summary, err := svc.RunEscalationScan(ctx)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"escalation scan scanned=%d overdue=%d escalated=%d already=%d failed=%d notified=%d deferred=%d\n",
				summary.Scanned,
				summary.Overdue,
				summary.Escalated,
				summary.AlreadyEscalated,
				summary.Failed,
				summary.Notified,
				summary.NotifyDeferred,
			); err != nil {
				return errs.Wrap(err, "write scheduler output")
			}
			return nil
		}

		if once {
			return runOnce()
		}
		return runEscalationLoop(ctx, interval, runOnce)
	}),
}

// runEscalationLoop ticks until ctx is done. A failed tick is logged and the
// next tick retries; overdue NCRs are found again because markers were not
// written.
func runEscalationLoop(ctx context.Context, interval time.Duration, tick func() error) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := tick(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Error(ctx, "escalation tick failed", slog.Any("err", errs.Loggable(err)))
		}
		select {
		case <-ctx.Done():
			logging.Info(ctx, "escalation loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerRunCmd.Flags().Bool("once", false, "Run one scan and exit")
	schedulerRunCmd.Flags().Duration("interval", 5*time.Minute, "Scan interval (default: scheduler.interval)")
}
