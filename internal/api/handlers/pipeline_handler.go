package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/auth"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/pipeline"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/source"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/transform"
)

type PipelineRunner interface {
	Run(ctx context.Context, date string) (*pipeline.Outcome, error)
	DateOffset(offset int) string
}

type PipelineHandler struct {
	runner PipelineRunner
	log    zerolog.Logger
}

func NewPipelineHandler(runner PipelineRunner, log zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, log: log}
}

// Run ingests one date synchronously and returns its outcome
// POST /api/v1/pipeline/run?date=2025-01-01
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.runner.DateOffset(0)
	}

	if _, err := transform.ParseDate(date); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if claims := auth.FromContext(r.Context()); claims != nil {
		h.log.Info().Str("date", date).Str("subject", claims.Subject).Msg("run triggered")
	}

	outcome, err := h.runner.Run(r.Context(), date)
	if err != nil {
		h.log.Warn().Err(err).Str("date", date).Msg("triggered run failed")
		respondJSON(w, statusFor(err), outcome)
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrRunLocked):
		return http.StatusConflict
	case errors.Is(err, transform.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
