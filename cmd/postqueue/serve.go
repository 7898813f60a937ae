package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/postqueue/pkg/postqueue"
	"github.com/randalmurphal/postqueue/pkg/postqueue/config"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Drain and clean the queue on a schedule",
		Long: `Run in the foreground, draining the queue on schedule.drain and purging
old rows on schedule.cleanup until SIGINT or SIGTERM.

Schedules accept standard five-field cron expressions and descriptors such
as "@every 30s" or "@daily". An empty schedule disables the job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, settings, err := openClient(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeClient(client, &err)

			c, err := newScheduler(ctx, client, settings)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			out := cmd.OutOrStdout()
			green.Fprint(out, "▶ ")
			fmt.Fprintf(out, "Drain:   %s\n", orDisabled(settings.DrainSchedule))
			green.Fprint(out, "▶ ")
			fmt.Fprintf(out, "Cleanup: %s (older than %dh)\n", orDisabled(settings.CleanupSchedule), settings.CleanupHours)

			c.Start()
			<-ctx.Done()

			slog.Info("shutting down, waiting for running jobs")
			<-c.Stop().Done()
			return nil
		},
	}
}

// newScheduler registers the drain and cleanup jobs. Overlapping runs of the
// same job are skipped.
func newScheduler(ctx context.Context, client *postqueue.Client, settings config.Settings) (*cron.Cron, error) {
	logger := cron.VerbosePrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if settings.DrainSchedule != "" {
		_, err := c.AddFunc(settings.DrainSchedule, func() {
			if _, err := client.ProcessQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("scheduled drain failed", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.drain %q: %w", settings.DrainSchedule, err)
		}
	}

	if settings.CleanupSchedule != "" {
		_, err := c.AddFunc(settings.CleanupSchedule, func() {
			client.PurgeOlderThan(ctx, settings.CleanupHours, settings.CleanupResponses)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.cleanup %q: %w", settings.CleanupSchedule, err)
		}
	}

	return c, nil
}

func orDisabled(spec string) string {
	if spec == "" {
		return "disabled"
	}
	return spec
}
