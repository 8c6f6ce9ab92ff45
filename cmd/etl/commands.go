package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/auth"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/scheduler"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/transform"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/version"
)

var errBackfillIncomplete = errors.New("backfill finished with failures")

var runFlags struct {
	date string
}

var backfillFlags struct {
	days int
}

var scheduleFlags struct {
	runNow bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest a single date (today by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		date := runFlags.date
		if date == "" {
			date = a.pipeline.DateOffset(0)
		}
		if _, err := transform.ParseDate(date); err != nil {
			return err
		}

		if err := a.probe(ctx); err != nil {
			return err
		}

		outcome, err := a.pipeline.Run(ctx, date)
		fmt.Print(outcome.Report())
		return err
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest the last N days, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.probe(ctx); err != nil {
			return err
		}

		result := a.pipeline.Backfill(ctx, backfillFlags.days)
		for _, outcome := range result.Outcomes {
			fmt.Print(outcome.Report())
		}
		fmt.Println(result.Summary())

		if len(result.Failed()) > 0 {
			return errBackfillIncomplete
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the analytics source is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.pipeline.Probe(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Connection OK\n  Source : %s\n  Version: %s\n  URL    : %s\n  Site ID: %s\n",
			a.source.Name(), version, a.cfg.Source.URL, a.cfg.Source.SiteID)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Ingest the previous day on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.probe(ctx); err != nil {
			return err
		}

		s := scheduler.NewScheduler(a.pipeline, a.cfg.Pipeline.Schedule, a.log)
		if err := s.Start(); err != nil {
			return err
		}

		if scheduleFlags.runNow {
			outcome, err := s.RunNow(ctx)
			if outcome != nil {
				fmt.Print(outcome.Report())
			}
			if err != nil {
				a.log.Warn().Err(err).Msg("initial run failed, waiting for schedule")
			}
		}

		a.log.Info().Msg("press Ctrl+C to stop")
		<-ctx.Done()

		s.Stop()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the metrics tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		db, err := repository.InitDatabase(ctx, a.cfg.Database, a.cfg.App)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer func() {
			if err := repository.CloseDatabase(db); err != nil {
				a.log.Warn().Err(err).Msg("error closing database")
			}
		}()

		if err := repository.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		a.log.Info().Msg("database migrated")
		return nil
	},
}

var tokenFlags struct {
	subject string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for POST /api/v1/pipeline/run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(rootFlags.configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		token, err := issueToken(cfg.API, tokenFlags.subject, tokenFlags.ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func issueToken(cfg config.APIConfig, subject string, ttl time.Duration) (string, error) {
	if !cfg.TriggerAuthEnabled() {
		return "", errors.New("api.jwt_secret is not set, the trigger does not accept tokens")
	}
	if subject == "" {
		return "", errors.New("--subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}
	return auth.NewJWTManager(cfg.JWTSecret, ttl).GenerateToken(subject)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("etl %s %s\n", version.Get(), runtime.Version())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.date, "date", "d", "", "Date to ingest (YYYY-MM-DD)")
	backfillCmd.Flags().IntVarP(&backfillFlags.days, "days", "n", 0, "Number of days (defaults to pipeline.backfill_days)")
	scheduleCmd.Flags().BoolVar(&scheduleFlags.runNow, "run-now", false, "Ingest yesterday immediately before waiting")
	tokenCmd.Flags().StringVarP(&tokenFlags.subject, "subject", "s", "", "Who the token is issued to (logged on each run)")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(runCmd, backfillCmd, probeCmd, scheduleCmd, migrateCmd, tokenCmd, versionCmd)
}
