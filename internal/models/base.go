package models

import (
	"time"
)

// DateLayout is the calendar-date format used on the wire, in flags and in
// the API.
const DateLayout = "2006-01-02"

// Timestamps is bookkeeping only; it never takes part in conflict resolution.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day truncates t to midnight UTC of its own calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RawSummary is one vendor summary object as decoded from JSON or produced by
// the simulator. Values are loosely typed: numbers, numeric strings or
// percentage strings.
type RawSummary map[string]interface{}

// RawChannel is one vendor breakdown row. The "label" key carries the vendor
// channel vocabulary.
type RawChannel map[string]interface{}
