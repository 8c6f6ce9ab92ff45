package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChannelOrganic  = "organic"
	ChannelPaid     = "paid"
	ChannelEmail    = "email"
	ChannelSocial   = "social"
	ChannelDirect   = "direct"
	ChannelReferral = "referral"
	ChannelOther    = "other"
)

// Channels is the closed attribution taxonomy.
var Channels = []string{
	ChannelOrganic,
	ChannelPaid,
	ChannelEmail,
	ChannelSocial,
	ChannelDirect,
	ChannelReferral,
	ChannelOther,
}

func IsValidChannel(channel string) bool {
	for _, c := range Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// ChannelMetric is the per-channel breakdown of one day. It is advisory:
// channel visits are not required to sum to DailyMetric.Visits.
type ChannelMetric struct {
	Date    time.Time `gorm:"primaryKey;type:date" json:"date"`
	Channel string    `gorm:"primaryKey;size:32" json:"channel"`

	Visits      int             `gorm:"not null;default:0" json:"visits"`
	Conversions int             `gorm:"not null;default:0" json:"conversions"`
	Revenue     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"revenue"`

	Timestamps
}

func (*ChannelMetric) TableName() string {
	return "channel_metrics"
}

// ChannelColumns are overwritten on conflict.
var ChannelColumns = []string{
	"visits",
	"conversions",
	"revenue",
	"updated_at",
}
