package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/version"
)

var startTime = time.Now()

type HealthHandler struct {
	mode string
}

func NewHealthHandler(mode string) *HealthHandler {
	return &HealthHandler{mode: mode}
}

type HealthResponse struct {
	Status    string       `json:"status"`
	Mode      string       `json:"mode"`
	Uptime    string       `json:"uptime"`
	Version   string       `json:"version"`
	Go        string       `json:"go_version"`
	BuildInfo version.Info `json:"build_info"`
}

// Health reports process status and the configured source mode.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	build := version.Get()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Mode:      h.mode,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   build.Version,
		Go:        runtime.Version(),
		BuildInfo: build,
	})
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
