package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/runlock"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/source"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/transform"
)

var (
	ErrProbeFailed = errors.New("source probe failed")
	ErrRunLocked   = errors.New("date is locked by another run")
)

type Options struct {
	Config    config.PipelineConfig
	Source    source.Source
	Connector repository.Connector
	Locker    runlock.Locker
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Pipeline runs Extract, Transform and Load for one date at a time.
type Pipeline struct {
	cfg       config.PipelineConfig
	source    source.Source
	connector repository.Connector
	locker    runlock.Locker
	log       zerolog.Logger
	now       func() time.Time
}

func New(opts Options) *Pipeline {
	locker := opts.Locker
	if locker == nil {
		locker = runlock.Noop{}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		cfg:       opts.Config,
		source:    opts.Source,
		connector: opts.Connector,
		locker:    locker,
		log:       opts.Logger.With().Str("component", "pipeline").Logger(),
		now:       now,
	}
}

// DateOffset returns the calendar date offset days away from today.
func (p *Pipeline) DateOffset(offset int) string {
	t := p.now()
	return time.Date(t.Year(), t.Month(), t.Day()+offset, 0, 0, 0, 0, t.Location()).Format(models.DateLayout)
}

func (p *Pipeline) RunToday(ctx context.Context) (*Outcome, error) {
	return p.Run(ctx, p.DateOffset(0))
}

// Run ingests one date. The returned outcome is never nil; a no-data outcome
// comes with a nil error.
func (p *Pipeline) Run(ctx context.Context, date string) (*Outcome, error) {
	outcome := &Outcome{
		RunID: uuid.NewString(),
		Date:  date,
		State: StateStart,
		Phase: StateStart,
	}

	log := p.log.With().Str("date", date).Str("run_id", outcome.RunID).Logger()
	started := p.now()
	defer func() {
		outcome.Duration = p.now().Sub(started)
	}()

	lease, err := p.locker.Acquire(ctx, date)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			err = fmt.Errorf("%w: %w", ErrRunLocked, err)
		}
		outcome.abort(StateStart, StatusFailed, err)
		log.Warn().Err(err).Msg("run not started")
		return outcome, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	// EXTRACT
	p.enter(outcome, StateExtract, log)

	rawSummary, err := p.source.FetchSummary(ctx, date)
	if err != nil {
		return p.fail(outcome, log, fmt.Errorf("extract summary: %w", err))
	}

	if rawSummary == nil {
		outcome.abort(StateExtract, StatusNoData, nil)
		log.Info().Str("phase", string(StateExtract)).Msg("no data available for this date")
		return outcome, nil
	}

	rawChannels, err := p.source.FetchChannels(ctx, date)
	if err != nil {
		return p.fail(outcome, log, fmt.Errorf("extract channels: %w", err))
	}

	log.Info().Str("source", p.source.Name()).Int("channel_rows", len(rawChannels)).Msg("extracted")

	// TRANSFORM
	p.enter(outcome, StateTransform, log)

	summary, err := transform.Summary(rawSummary, date)
	if err != nil {
		return p.fail(outcome, log, fmt.Errorf("transform summary: %w", err))
	}

	channels, err := transform.Channels(rawChannels, date)
	if err != nil {
		return p.fail(outcome, log, fmt.Errorf("transform channels: %w", err))
	}

	// LOAD
	p.enter(outcome, StateLoad, log)

	if err := p.load(ctx, summary, channels, log); err != nil {
		return p.fail(outcome, log, err)
	}

	// DONE
	outcome.State = StateDone
	outcome.Phase = StateDone
	outcome.Status = StatusSuccess
	outcome.Summary = summary
	outcome.Channels = channels
	outcome.Visits = summary.Visits
	outcome.Conversions = summary.Conversions
	outcome.ConversionRate = summary.ConversionRate
	outcome.ChannelCount = len(channels)

	log.Info().
		Int("visits", outcome.Visits).
		Int("conversions", outcome.Conversions).
		Float64("conversion_rate", outcome.ConversionRate).
		Int("channel_count", outcome.ChannelCount).
		Msg("pipeline completed")

	return outcome, nil
}

// load holds one store handle for the whole phase and always releases it.
func (p *Pipeline) load(ctx context.Context, summary *models.DailyMetric, channels []*models.ChannelMetric, log zerolog.Logger) error {
	repo, err := p.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	if err := repo.UpsertSummary(ctx, summary); err != nil {
		return err
	}

	if err := repo.UpsertChannels(ctx, channels); err != nil {
		return err
	}

	log.Info().Int("channel_count", len(channels)).Msg("loaded")
	return nil
}

func (p *Pipeline) enter(outcome *Outcome, state State, log zerolog.Logger) {
	outcome.State = state
	outcome.Phase = state
	log.Debug().Str("phase", string(state)).Msg("entering phase")
}

func (p *Pipeline) fail(outcome *Outcome, log zerolog.Logger, err error) (*Outcome, error) {
	outcome.abort(outcome.Phase, StatusFailed, err)
	log.Error().Err(err).Str("phase", string(outcome.Phase)).Msg("pipeline aborted")
	return outcome, err
}

// Backfill runs today, today-1, ... strictly in sequence. A failing date is
// recorded and the loop moves on.
func (p *Pipeline) Backfill(ctx context.Context, days int) *BackfillResult {
	if days <= 0 {
		days = p.cfg.BackfillDays
	}
	if days <= 0 {
		days = 1
	}

	p.log.Info().Int("days", days).Msg("starting backfill")

	result := &BackfillResult{Outcomes: make([]*Outcome, 0, days)}
	for i := 0; i < days; i++ {
		outcome, err := p.Run(ctx, p.DateOffset(-i))
		if err != nil {
			p.log.Error().Err(err).Str("date", outcome.Date).Msg("backfill date failed, continuing")
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	p.log.Info().
		Int("succeeded", len(result.Succeeded())).
		Int("no_data", len(result.NoData())).
		Int("failed", len(result.Failed())).
		Msg("backfill finished")

	return result
}

// Probe checks the source is reachable and accepts our credentials.
func (p *Pipeline) Probe(ctx context.Context) (string, error) {
	version, err := p.source.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	p.log.Info().Str("source", p.source.Name()).Str("version", version).Msg("source reachable")
	return version, nil
}
