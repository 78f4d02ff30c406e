package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(h.logger),
		Logging(),
	)

	// Setting
	mux.Handle("GET /api/v1/setting", chain(http.HandlerFunc(h.GetSetting)))
	mux.Handle("PUT /api/v1/setting", chain(http.HandlerFunc(h.LoadSetting)))

	// Steps
	mux.Handle("GET /api/v1/steps", chain(http.HandlerFunc(h.ListSteps)))
	mux.Handle("GET /api/v1/steps/{name}", chain(http.HandlerFunc(h.GetStep)))
	mux.Handle("POST /api/v1/steps/{name}/run", chain(http.HandlerFunc(h.RunStep)))
	mux.Handle("PUT /api/v1/steps/{name}/state", chain(http.HandlerFunc(h.UpdateState)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Events
	mux.Handle("GET /api/v1/events", chain(http.HandlerFunc(h.Events)))
}
