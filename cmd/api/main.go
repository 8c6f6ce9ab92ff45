package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/logger"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/pipeline"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/runlock"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/source"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		bootLog := logger.New("production", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	log.Info().Str("environment", cfg.App.Environment).Str("mode", cfg.Source.Mode).Msg("starting metrics api")

	ctx := context.Background()

	db, err := repository.InitDatabase(ctx, cfg.Database, cfg.App)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := repository.CloseDatabase(db); err != nil {
			log.Error().Err(err).Msg("error closing database")
		}
	}()

	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Msg("database ready")

	redisClient, err := runlock.NewRedisClient(ctx, cfg.Redis)
	if err != nil && cfg.App.Environment == "production" {
		log.Fatal().Err(err).Msg("failed to connect to redis (required in production)")
	}
	if redisClient != nil {
		defer runlock.CloseRedisClient(redisClient)
		log.Info().Msg("redis connected, runs are locked per date")
	} else {
		log.Warn().Msg("redis not available, runs are not locked")
	}

	// Triggered runs share the API's connection pool.
	connector := &repository.SharedConnector{DB: db, Logger: log}

	p := pipeline.New(pipeline.Options{
		Config:    cfg.Pipeline,
		Source:    source.New(cfg.Source, log),
		Connector: connector,
		Locker:    runlock.New(redisClient, cfg.Pipeline.LockTTL(), log),
		Logger:    log,
	})

	server := api.NewServer(cfg, repository.NewMetricsRepository(db, log), p, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
