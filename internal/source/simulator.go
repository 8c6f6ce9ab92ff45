package source

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
)

const (
	minChannelVisits = 10
	simulatorVersion = "simulator"
)

// simulatedLabels uses the vendor vocabulary so simulated rows go through the
// same channel mapping as live ones.
var simulatedLabels = []string{"search", "campaign", "website", "social", "direct"}

// Simulator generates plausible, internally consistent metrics without any
// network access.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	log zerolog.Logger
}

func NewSimulator(rng *rand.Rand, log zerolog.Logger) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Simulator{
		rng: rng,
		log: log.With().Str("source", "simulation").Logger(),
	}
}

func (s *Simulator) Name() string {
	return "simulation"
}

// FetchSummary always returns data. Conversions never exceed a quarter of
// visits and conversion_rate is derived from them.
func (s *Simulator) FetchSummary(ctx context.Context, date string) (models.RawSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	visits := s.intn(80, 400)
	conversions := s.intn(5, int(float64(visits)*0.25))
	rate := round2(float64(conversions) / float64(visits) * 100)

	summary := models.RawSummary{
		"nb_visits":            visits,
		"nb_uniq_visitors":     int(float64(visits) * s.uniform(0.6, 0.9)),
		"nb_actions":           visits * s.intn(2, 6),
		"nb_conversions":       conversions,
		"conversion_rate":      strconv.FormatFloat(rate, 'f', -1, 64) + "%",
		"bounce_rate":          fmt.Sprintf("%s%%", strconv.FormatFloat(round2(s.uniform(20, 55)), 'f', -1, 64)),
		"avg_time_on_site":     s.intn(60, 600),
		"nb_actions_per_visit": round2(s.uniform(2, 5.5)),
	}

	s.log.Debug().Str("date", date).Int("visits", visits).Int("conversions", conversions).Msg("generated summary")

	return summary, nil
}

// FetchChannels splits a fresh visit pool across the vendor labels. Each row
// gets at least minChannelVisits; generation stops once the pool cannot fund
// another row.
func (s *Simulator) FetchChannels(ctx context.Context, date string) ([]models.RawChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.intn(80, 400)
	rows := make([]models.RawChannel, 0, len(simulatedLabels))

	for _, label := range simulatedLabels {
		if remaining < minChannelVisits {
			break
		}

		upper := remaining / 2
		if upper < minChannelVisits {
			upper = minChannelVisits
		}
		visits := s.intn(minChannelVisits, upper)
		if visits > remaining {
			visits = remaining
		}
		remaining -= visits

		conversions := s.intn(0, int(float64(visits)*0.3))
		revenue := round2(float64(conversions) * s.uniform(20, 120))

		rows = append(rows, models.RawChannel{
			"label":          label,
			"nb_visits":      visits,
			"nb_conversions": conversions,
			"revenue":        revenue,
		})
	}

	s.log.Debug().Str("date", date).Int("rows", len(rows)).Msg("generated channels")

	return rows, nil
}

func (s *Simulator) Version(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return simulatorVersion, nil
}

// intn returns a uniform int in [lo, hi].
func (s *Simulator) intn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
