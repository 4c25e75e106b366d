package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/desertthunder/ytgate/internal/services"
)

// HealthResponse reports the gateway's dependencies.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Upstream string `json:"upstream,omitempty"`
}

// HealthHandler answers /health. The database decides the status; the upstream is reported
// but a down upstream leaves the gateway itself healthy.
type HealthHandler struct {
	DB       *sql.DB
	Upstream services.Upstream
	Timeout  time.Duration
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if err := h.DB.PingContext(ctx); err != nil {
		resp.Status, resp.Database = "degraded", "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.Upstream != nil {
		resp.Upstream = "ok"
		if err := h.Upstream.Ping(ctx); err != nil {
			resp.Upstream = "unavailable"
		}
	}

	WriteJSON(w, status, resp)
}
