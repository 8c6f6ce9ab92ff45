package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/transform"
)

const (
	defaultRangeDays = 7
	maxRangeDays     = 366
)

var errBadRange = errors.New("from must not be after to")

type MetricsHandler struct {
	repo repository.MetricsRepository
	now  func() time.Time
	log  zerolog.Logger
}

func NewMetricsHandler(repo repository.MetricsRepository, log zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{repo: repo, now: time.Now, log: log}
}

type DailyMetricsResponse struct {
	From    string                `json:"from"`
	To      string                `json:"to"`
	Count   int                   `json:"count"`
	Metrics []*models.DailyMetric `json:"metrics"`
}

type ChannelMetricsResponse struct {
	From    string                  `json:"from"`
	To      string                  `json:"to"`
	Count   int                     `json:"count"`
	Metrics []*models.ChannelMetric `json:"metrics"`
}

// ListDaily returns daily_metrics rows in a date range
// GET /api/v1/metrics/daily?from=2025-01-01&to=2025-01-07
func (h *MetricsHandler) ListDaily(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics, err := h.repo.ListDailyMetrics(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list daily metrics")
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	if metrics == nil {
		metrics = []*models.DailyMetric{}
	}

	respondJSON(w, http.StatusOK, DailyMetricsResponse{
		From:    from.Format(models.DateLayout),
		To:      to.Format(models.DateLayout),
		Count:   len(metrics),
		Metrics: metrics,
	})
}

// GetDaily returns one day
// GET /api/v1/metrics/daily/{date}
func (h *MetricsHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	date, err := transform.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	metric, err := h.repo.GetDailyMetric(r.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Time("date", date).Msg("failed to get daily metric")
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	if metric == nil {
		respondError(w, http.StatusNotFound, "no metrics for "+date.Format(models.DateLayout))
		return
	}

	respondJSON(w, http.StatusOK, metric)
}

// ListChannels returns channel_metrics rows in a date range
// GET /api/v1/metrics/channels?from=2025-01-01&to=2025-01-07
func (h *MetricsHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics, err := h.repo.ListChannelMetrics(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list channel metrics")
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	if metrics == nil {
		metrics = []*models.ChannelMetric{}
	}

	respondJSON(w, http.StatusOK, ChannelMetricsResponse{
		From:    from.Format(models.DateLayout),
		To:      to.Format(models.DateLayout),
		Count:   len(metrics),
		Metrics: metrics,
	})
}

// parseRange defaults to the last seven days ending today.
func (h *MetricsHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	to := models.Day(h.now())
	if v := q.Get("to"); v != "" {
		d, err := transform.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = d
	}

	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if v := q.Get("from"); v != "" {
		d, err := transform.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = d
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, errBadRange
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		from = to.AddDate(0, 0, -maxRangeDays)
	}

	return from, to, nil
}
