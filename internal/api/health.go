package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the store round-trip made by the health endpoint.
const healthCheckTimeout = 3 * time.Second

// poolStats is the connection pool snapshot included in health responses.
type poolStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	Faults          int64 `json:"faults"`
}

// healthResponse is the body returned by the health endpoint.
type healthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Pool    poolStats `json:"pool"`
}

// handleHealth reports whether the device store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	stats := s.pool.Stats()
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Pool: poolStats{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
			Faults:          s.pool.Faults(),
		},
	}

	status := http.StatusOK
	if err := s.pool.HealthCheck(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
