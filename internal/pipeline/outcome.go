package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
)

// State is a step of the per-date state machine
// START -> EXTRACT -> TRANSFORM -> LOAD -> DONE, with ABORTED reachable from
// any step.
type State string

const (
	StateStart     State = "START"
	StateExtract   State = "EXTRACT"
	StateTransform State = "TRANSFORM"
	StateLoad      State = "LOAD"
	StateDone      State = "DONE"
	StateAborted   State = "ABORTED"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusNoData  Status = "no_data"
	StatusFailed  Status = "failed"
)

// Outcome describes one date's run. Phase is the last phase entered, which
// for an aborted run is where it stopped.
type Outcome struct {
	RunID  string `json:"run_id"`
	Date   string `json:"date"`
	State  State  `json:"state"`
	Status Status `json:"status"`
	Phase  State  `json:"phase"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	Visits         int     `json:"visits"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	ChannelCount   int     `json:"channel_count"`

	Summary  *models.DailyMetric     `json:"summary,omitempty"`
	Channels []*models.ChannelMetric `json:"channels,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func (o *Outcome) abort(phase State, status Status, err error) {
	o.State = StateAborted
	o.Phase = phase
	o.Status = status
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	}
}

// Report renders the operator-facing block for this date.
func (o *Outcome) Report() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\n ETL PIPELINE - %s\n%s\n", rule, o.Date, rule)

	switch o.Status {
	case StatusSuccess:
		fmt.Fprintf(&b, " Status          : %s\n", o.Status)
		fmt.Fprintf(&b, " Visits          : %d\n", o.Visits)
		fmt.Fprintf(&b, " Conversions     : %d\n", o.Conversions)
		fmt.Fprintf(&b, " Conversion rate : %.2f%%\n", o.ConversionRate)
		fmt.Fprintf(&b, " Channels        : %d\n", o.ChannelCount)
	case StatusNoData:
		fmt.Fprintf(&b, " Status          : %s\n", o.Status)
		b.WriteString(" No data available for this date\n")
	default:
		fmt.Fprintf(&b, " Status          : %s (%s)\n", o.Status, o.Phase)
		fmt.Fprintf(&b, " Error           : %s\n", o.Error)
	}

	fmt.Fprintf(&b, " Duration        : %s\n", o.Duration.Round(time.Millisecond))
	return b.String()
}

// BackfillResult keeps every date's outcome, most recent first.
type BackfillResult struct {
	Outcomes []*Outcome `json:"outcomes"`
}

func (r *BackfillResult) Failed() []*Outcome {
	return r.filter(StatusFailed)
}

func (r *BackfillResult) Succeeded() []*Outcome {
	return r.filter(StatusSuccess)
}

func (r *BackfillResult) NoData() []*Outcome {
	return r.filter(StatusNoData)
}

func (r *BackfillResult) filter(status Status) []*Outcome {
	var out []*Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (r *BackfillResult) Summary() string {
	return fmt.Sprintf("%d dates: %d succeeded, %d without data, %d failed",
		len(r.Outcomes), len(r.Succeeded()), len(r.NoData()), len(r.Failed()))
}
