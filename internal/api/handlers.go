// Package api serves the read-only status endpoints of a running tracksync
// process.
package api

import (
	"net/http"
	"time"

	"github.com/nadmax/tracksync/internal/dashboard"
	"github.com/nadmax/tracksync/internal/httputil"
	"github.com/nadmax/tracksync/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	dash    *dashboard.Dashboard
	mux     *http.ServeMux
	handler http.Handler
	started time.Time
}

type HealthResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	LastOutcome   string     `json:"last_outcome,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

func NewAPI(dash *dashboard.Dashboard) *API {
	api := &API{
		dash:    dash,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}

	api.setupRoutes()
	api.handler = middleware.MetricsMiddleware(api.mux)
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/status", a.dash.GetStats)
	a.mux.HandleFunc("/api/cycles", a.dash.GetRecentCycles)
	a.mux.HandleFunc("/healthz", a.handleHealth)
	a.mux.Handle("/metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// handleHealth reports liveness of the process. A failing last cycle does
// not make the process unhealthy; the next tick retries it.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(a.started).Round(time.Second).String(),
	}

	stats := a.dash.Stats()
	if stats.LastCycle != nil {
		resp.LastOutcome = string(stats.LastCycle.Outcome)
	}
	resp.LastSuccessAt = stats.LastSuccessAt

	httputil.WriteJSON(w, http.StatusOK, resp)
}
