package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-flow/internal/cli"
	"github.com/Veraticus/statement-flow/internal/metrics"
	"github.com/Veraticus/statement-flow/internal/model"
)

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Daily parsing metrics",
	}
	cmd.AddCommand(metricsShowCmd())
	cmd.AddCommand(metricsAggregateCmd())
	cmd.AddCommand(metricsScheduleCmd())
	return cmd
}

func metricsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show daily rollups for an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			owner, _ := cmd.Flags().GetString("owner")
			days, _ := cmd.Flags().GetInt("days")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if days < 1 {
				days = 1
			}
			to := model.DayStart(time.Now())
			from := to.AddDate(0, 0, -(days - 1))
			rows, err := a.store.GetMetrics(ctx, owner, from, to)
			if err != nil {
				return fmt.Errorf("failed to load metrics: %w", err)
			}

			r := cli.NewRenderer(cmd.OutOrStdout())
			if asJSON {
				return r.JSON(rows)
			}
			return r.Metrics(rows)
		},
	}
	cmd.Flags().String("owner", "default", "owner to report on")
	cmd.Flags().Int("days", 7, "number of days ending today")
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func metricsAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute the rollup for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dayFlag, _ := cmd.Flags().GetString("day")
			owner, _ := cmd.Flags().GetString("owner")

			day := model.DayStart(time.Now()).AddDate(0, 0, -1)
			if dayFlag != "" {
				parsed, err := time.Parse(time.DateOnly, dayFlag)
				if err != nil {
					return fmt.Errorf("invalid --day, want YYYY-MM-DD: %w", err)
				}
				day = parsed
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if owner != "" {
				m, err := a.aggregator.Aggregate(ctx, owner, day)
				if err != nil {
					return err
				}
				return cli.NewRenderer(cmd.OutOrStdout()).Metrics([]model.ParsingMetrics{*m})
			}

			n, err := a.aggregator.AggregateDay(ctx, day)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Aggregated %s for %d owners", day.Format(time.DateOnly), n)))
			return nil
		},
	}
	cmd.Flags().String("day", "", "day to aggregate, YYYY-MM-DD (default yesterday)")
	cmd.Flags().String("owner", "", "aggregate only this owner")
	return cmd
}

func metricsScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the nightly rollup until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			scheduler, err := metrics.NewScheduler(a.aggregator, a.cfg.Metrics.Schedule, a.cfg.Metrics.Timezone, slog.Default())
			if err != nil {
				return err
			}

			go a.aggregator.Start(ctx)
			scheduler.Start()
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(
				fmt.Sprintf("Metrics rollup scheduled (%s), next run %s", a.cfg.Metrics.Schedule, scheduler.Next().Format(time.RFC3339))))

			<-ctx.Done()
			slog.Info("Stopping metrics scheduler")
			scheduler.Stop()
			return nil
		},
	}
}
