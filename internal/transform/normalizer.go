package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
)

var ErrInvalidDate = errors.New("invalid date")

// channelMapping translates the vendor's referrer types into the internal
// attribution taxonomy. Labels missing here land in "other" so their traffic
// still counts.
var channelMapping = map[string]string{
	"search":   models.ChannelOrganic,
	"direct":   models.ChannelDirect,
	"website":  models.ChannelReferral,
	"campaign": models.ChannelPaid,
	"social":   models.ChannelSocial,
}

// ParseDate validates a YYYY-MM-DD target date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected %s", ErrInvalidDate, date, models.DateLayout)
	}
	return models.Day(t), nil
}

func MapChannel(label string) string {
	if channel, ok := channelMapping[strings.ToLower(strings.TrimSpace(label))]; ok {
		return channel
	}
	return models.ChannelOther
}

// Summary maps a raw vendor summary onto a DailyMetric. A nil raw summary
// yields nil.
func Summary(raw models.RawSummary, date string) (*models.DailyMetric, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}

	return &models.DailyMetric{
		Date:           day,
		Visits:         ToInt(raw["nb_visits"]),
		UniqueVisitors: ToInt(raw["nb_uniq_visitors"]),
		Actions:        ToInt(raw["nb_actions"]),
		Conversions:    ToInt(raw["nb_conversions"]),
		ConversionRate: Round2(ToFloat(raw["conversion_rate"])),
		BounceRate:     Round2(ToFloat(raw["bounce_rate"])),
		AvgTimeOnSite:  ToInt(raw["avg_time_on_site"]),
		PagesPerVisit:  Round2(ToFloat(raw["nb_actions_per_visit"])),
	}, nil
}

// Channels maps raw breakdown rows onto ChannelMetrics. Rows that resolve to
// the same internal channel are summed into one metric, in order of first
// appearance.
func Channels(raws []models.RawChannel, date string) ([]*models.ChannelMetric, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	if len(raws) == 0 {
		return []*models.ChannelMetric{}, nil
	}

	byChannel := make(map[string]*models.ChannelMetric, len(raws))
	result := make([]*models.ChannelMetric, 0, len(raws))

	for _, raw := range raws {
		label, _ := raw["label"].(string)
		channel := MapChannel(label)

		metric, exists := byChannel[channel]
		if !exists {
			metric = &models.ChannelMetric{
				Date:    day,
				Channel: channel,
			}
			byChannel[channel] = metric
			result = append(result, metric)
		}

		metric.Visits += ToInt(raw["nb_visits"])
		metric.Conversions += ToInt(raw["nb_conversions"])
		metric.Revenue = metric.Revenue.Add(ToDecimal(raw["revenue"]))
	}

	return result, nil
}
