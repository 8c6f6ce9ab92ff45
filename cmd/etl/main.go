package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/logger"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/pipeline"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/runlock"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/source"
)

var rootFlags struct {
	configDir string
	mode      string
	skipProbe bool
}

var rootCmd = &cobra.Command{
	Use:           "etl",
	Short:         "Web analytics ETL: Matomo (or simulator) to PostgreSQL",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configDir, "config", "c", "./configs", "Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&rootFlags.mode, "mode", "", "Override source mode (live|simulation)")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.skipProbe, "skip-probe", false, "Do not check the source before running")
}

// app is everything a command needs, built once from configuration.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	source   source.Source
	pipeline *pipeline.Pipeline
	redis    *redis.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(rootFlags.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootFlags.mode != "" {
		cfg.Source.Mode = strings.ToLower(rootFlags.mode)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	log := newCLILogger(cfg)
	if cfg.App.Environment == "development" {
		log.Debug().Msg(cfg.SafeString())
	}

	redisClient, err := runlock.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if cfg.App.Environment == "production" {
			return nil, err
		}
		log.Warn().Err(err).Msg("redis unavailable, runs are not locked")
	}

	src := source.New(cfg.Source, log)
	log.Info().Str("mode", cfg.Source.Mode).Str("source", src.Name()).Msg("source selected")

	p := pipeline.New(pipeline.Options{
		Config:    cfg.Pipeline,
		Source:    src,
		Connector: repository.NewPostgresConnector(cfg, log),
		Locker:    runlock.New(redisClient, cfg.Pipeline.LockTTL(), log),
		Logger:    log,
	})

	return &app{cfg: cfg, log: log, source: src, pipeline: p, redis: redisClient}, nil
}

// newCLILogger writes to stderr; stdout carries only reports and tokens so
// they can be piped.
func newCLILogger(cfg *config.Config) zerolog.Logger {
	return logger.NewWithWriter(os.Stderr, cfg.App.Environment, cfg.App.LogLevel)
}

func (a *app) Close() {
	if err := runlock.CloseRedisClient(a.redis); err != nil {
		a.log.Warn().Err(err).Msg("error closing redis")
	}
}

// probe is the hard stop before any date is processed.
func (a *app) probe(ctx context.Context) error {
	if rootFlags.skipProbe {
		return nil
	}

	version, err := a.pipeline.Probe(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Source reachable: %s %s\n", a.source.Name(), version)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
