package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness plus database reachability.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	overall, dbStatus := "ok", "ok"
	status := http.StatusOK
	if err := a.Pool.Ping(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("health check database ping failed")
		overall, dbStatus = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}

	a.json(w, status, map[string]string{
		"status":   overall,
		"database": dbStatus,
	})
}

// Metrics exposes the in-process request counters.
func (a *App) Metrics(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Monitor.Snapshot())
}
