package models

import "time"

// DailyMetric is the site-wide aggregate for one calendar day
type DailyMetric struct {
	Date time.Time `gorm:"primaryKey;type:date" json:"date"`

	// Traffic
	Visits         int `gorm:"not null;default:0" json:"visits"`
	UniqueVisitors int `gorm:"not null;default:0" json:"unique_visitors"`
	Actions        int `gorm:"not null;default:0" json:"actions"`

	// Conversion
	Conversions    int     `gorm:"not null;default:0" json:"conversions"`
	ConversionRate float64 `gorm:"type:decimal(5,2);not null;default:0" json:"conversion_rate"` // percent
	BounceRate     float64 `gorm:"type:decimal(5,2);not null;default:0" json:"bounce_rate"`     // percent

	// Engagement
	AvgTimeOnSite int     `gorm:"not null;default:0" json:"avg_time_on_site"` // in seconds
	PagesPerVisit float64 `gorm:"type:decimal(6,2);not null;default:0" json:"pages_per_visit"`

	Timestamps
}

func (*DailyMetric) TableName() string {
	return "daily_metrics"
}

// SummaryColumns are overwritten on conflict. The key column is excluded.
var SummaryColumns = []string{
	"visits",
	"unique_visitors",
	"actions",
	"conversions",
	"conversion_rate",
	"bounce_rate",
	"avg_time_on_site",
	"pages_per_visit",
	"updated_at",
}

func (m *DailyMetric) DateString() string {
	return m.Date.Format(DateLayout)
}
