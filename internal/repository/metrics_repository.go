package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
)

// MetricsRepository is the gateway to daily_metrics and channel_metrics.
// Writes are idempotent upserts keyed on the natural key of each table.
type MetricsRepository interface {
	UpsertSummary(ctx context.Context, summary *models.DailyMetric) error
	UpsertChannels(ctx context.Context, channels []*models.ChannelMetric) error

	GetDailyMetric(ctx context.Context, date time.Time) (*models.DailyMetric, error)
	ListDailyMetrics(ctx context.Context, from, to time.Time) ([]*models.DailyMetric, error)
	ListChannelMetrics(ctx context.Context, from, to time.Time) ([]*models.ChannelMetric, error)

	Close() error
}

// Connector hands out a repository bound to a fresh store handle. The caller
// must Close it.
type Connector interface {
	Connect(ctx context.Context) (MetricsRepository, error)
}

type metricsRepository struct {
	db   *gorm.DB
	log  zerolog.Logger
	owns bool
}

// NewMetricsRepository wraps a shared handle; Close leaves it open.
func NewMetricsRepository(db *gorm.DB, log zerolog.Logger) MetricsRepository {
	return &metricsRepository{db: db, log: log}
}

func (r *metricsRepository) UpsertSummary(ctx context.Context, summary *models.DailyMetric) error {
	if summary == nil {
		r.log.Info().Msg("no summary to load")
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns(models.SummaryColumns),
		}).Create(summary).Error
	})
	if err != nil {
		return fmt.Errorf("upsert daily_metrics %s: %w", summary.DateString(), err)
	}

	r.log.Debug().Str("date", summary.DateString()).Msg("daily_metrics upserted")
	return nil
}

func (r *metricsRepository) UpsertChannels(ctx context.Context, channels []*models.ChannelMetric) error {
	if len(channels) == 0 {
		r.log.Info().Msg("no channel rows to load")
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		onConflict := clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns(models.ChannelColumns),
		}

		for _, channel := range channels {
			if err := tx.Clauses(onConflict).Create(channel).Error; err != nil {
				return fmt.Errorf("channel %s: %w", channel.Channel, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert channel_metrics: %w", err)
	}

	r.log.Debug().
		Str("date", channels[0].Date.Format(models.DateLayout)).
		Int("channel_count", len(channels)).
		Msg("channel_metrics upserted")
	return nil
}

func (r *metricsRepository) GetDailyMetric(ctx context.Context, date time.Time) (*models.DailyMetric, error) {
	var metric models.DailyMetric
	err := r.db.WithContext(ctx).Where("date = ?", models.Day(date)).First(&metric).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

func (r *metricsRepository) ListDailyMetrics(ctx context.Context, from, to time.Time) ([]*models.DailyMetric, error) {
	var metrics []*models.DailyMetric
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", models.Day(from), models.Day(to)).
		Order("date ASC").
		Find(&metrics).Error
	return metrics, err
}

func (r *metricsRepository) ListChannelMetrics(ctx context.Context, from, to time.Time) ([]*models.ChannelMetric, error) {
	var metrics []*models.ChannelMetric
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", models.Day(from), models.Day(to)).
		Order("date ASC").
		Order("channel ASC").
		Find(&metrics).Error
	return metrics, err
}

func (r *metricsRepository) Close() error {
	if !r.owns {
		return nil
	}
	return CloseDatabase(r.db)
}

// PostgresConnector opens one connection pool per Connect call.
type PostgresConnector struct {
	Database config.DatabaseConfig
	App      config.AppConfig
	Logger   zerolog.Logger
}

func NewPostgresConnector(cfg *config.Config, log zerolog.Logger) *PostgresConnector {
	return &PostgresConnector{
		Database: cfg.Database,
		App:      cfg.App,
		Logger:   log,
	}
}

func (c *PostgresConnector) Connect(ctx context.Context) (MetricsRepository, error) {
	db, err := InitDatabase(ctx, c.Database, c.App)
	if err != nil {
		return nil, fmt.Errorf("connect to %s@%s:%s: %w", c.Database.DBName, c.Database.Host, c.Database.Port, err)
	}

	return &metricsRepository{db: db, log: c.Logger, owns: true}, nil
}

// SharedConnector hands out repositories over one long-lived handle.
type SharedConnector struct {
	DB     *gorm.DB
	Logger zerolog.Logger
}

func (c *SharedConnector) Connect(ctx context.Context) (MetricsRepository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewMetricsRepository(c.DB, c.Logger), nil
}
