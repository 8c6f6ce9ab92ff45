package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/pipeline"
)

const DefaultSchedule = "0 3 * * *"

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, date string) (*pipeline.Outcome, error)
	DateOffset(offset int) string
}

// Scheduler ingests the previous calendar day, the last complete one, on a
// cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	schedule string
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
}

func NewScheduler(runner Runner, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:   runner,
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.RunNow(s.ctx)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow ingests yesterday immediately.
func (s *Scheduler) RunNow(ctx context.Context) (*pipeline.Outcome, error) {
	date := s.runner.DateOffset(-1)
	s.log.Info().Str("date", date).Msg("running scheduled ingestion")

	outcome, err := s.runner.Run(ctx, date)
	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("scheduled ingestion failed")
		return outcome, err
	}

	s.log.Info().Str("date", date).Str("status", string(outcome.Status)).Msg("scheduled ingestion finished")
	return outcome, nil
}
