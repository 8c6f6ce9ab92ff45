package source

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
)

// ErrSourceUnavailable marks transient failures: transport errors, timeouts
// and non-2xx responses.
var ErrSourceUnavailable = errors.New("analytics source unavailable")

// Source produces raw metrics for one calendar date (YYYY-MM-DD).
//
// FetchSummary returns (nil, nil) when the source has nothing for the date.
// That is a valid outcome, not an error.
type Source interface {
	Name() string
	FetchSummary(ctx context.Context, date string) (models.RawSummary, error)
	FetchChannels(ctx context.Context, date string) ([]models.RawChannel, error)
	Version(ctx context.Context) (string, error)
}

// New picks the implementation once, from configuration.
func New(cfg config.SourceConfig, log zerolog.Logger) Source {
	if cfg.IsLive() {
		return NewMatomoSource(MatomoOptions{
			URL:       cfg.URL,
			Token:     cfg.Token,
			SiteID:    cfg.SiteID,
			Timeout:   cfg.Timeout(),
			RateLimit: cfg.RateLimit,
			Logger:    log,
		})
	}

	return NewSimulator(rand.New(rand.NewSource(time.Now().UnixNano())), log)
}
