package source

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/transform"
)

func TestSimulatorSummaryInvariants(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(42)), zerolog.Nop())

	for i := 0; i < 200; i++ {
		raw, err := sim.FetchSummary(context.Background(), "2025-01-01")
		require.NoError(t, err)
		require.NotNil(t, raw)

		summary, err := transform.Summary(raw, "2025-01-01")
		require.NoError(t, err)

		assert.GreaterOrEqual(t, summary.Visits, 80)
		assert.LessOrEqual(t, summary.Visits, 400)
		assert.GreaterOrEqual(t, summary.Conversions, 5)
		assert.LessOrEqual(t, float64(summary.Conversions), float64(summary.Visits)*0.25)
		assert.LessOrEqual(t, summary.UniqueVisitors, summary.Visits)

		want := math.Round(float64(summary.Conversions)/float64(summary.Visits)*100*100) / 100
		assert.Equal(t, want, summary.ConversionRate)

		assert.GreaterOrEqual(t, summary.BounceRate, 20.0)
		assert.LessOrEqual(t, summary.BounceRate, 55.0)
		assert.GreaterOrEqual(t, summary.AvgTimeOnSite, 60)
		assert.LessOrEqual(t, summary.AvgTimeOnSite, 600)
	}
}

func TestSimulatorChannelsInvariants(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(7)), zerolog.Nop())

	for i := 0; i < 200; i++ {
		rows, err := sim.FetchChannels(context.Background(), "2025-01-01")
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		require.LessOrEqual(t, len(rows), len(simulatedLabels))

		total := 0
		for j, row := range rows {
			assert.Equal(t, simulatedLabels[j], row["label"])

			visits := transform.ToInt(row["nb_visits"])
			conversions := transform.ToInt(row["nb_conversions"])
			assert.GreaterOrEqual(t, visits, minChannelVisits)
			assert.LessOrEqual(t, float64(conversions), float64(visits)*0.3)
			assert.GreaterOrEqual(t, transform.ToFloat(row["revenue"]), 0.0)
			total += visits
		}
		assert.LessOrEqual(t, total, 400)

		channels, err := transform.Channels(rows, "2025-01-01")
		require.NoError(t, err)
		for _, c := range channels {
			assert.True(t, models.IsValidChannel(c.Channel))
			assert.NotEqual(t, models.ChannelOther, c.Channel)
		}
	}
}

func TestSimulatorIsDeterministicForSeed(t *testing.T) {
	a := NewSimulator(rand.New(rand.NewSource(99)), zerolog.Nop())
	b := NewSimulator(rand.New(rand.NewSource(99)), zerolog.Nop())

	ra, err := a.FetchSummary(context.Background(), "2025-01-01")
	require.NoError(t, err)
	rb, err := b.FetchSummary(context.Background(), "2025-01-01")
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
}

func TestSimulatorHonoursCancelledContext(t *testing.T) {
	sim := NewSimulator(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.FetchSummary(ctx, "2025-01-01")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPicksImplementationFromMode(t *testing.T) {
	sim := New(config.SourceConfig{Mode: config.ModeSimulation}, zerolog.Nop())
	assert.Equal(t, "simulation", sim.Name())

	live := New(config.SourceConfig{Mode: config.ModeLive, URL: "http://matomo.local", Token: "t", SiteID: "1", TimeoutSeconds: 5}, zerolog.Nop())
	assert.Equal(t, "matomo", live.Name())
}
