package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(),
		Logging(h.logger),
	)

	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("POST /api/v1/jobs/{id}/start", chain(http.HandlerFunc(h.StartJob)))
	mux.Handle("POST /api/v1/jobs/{id}/stop", chain(http.HandlerFunc(h.StopJob)))
	mux.Handle("POST /api/v1/jobs/{id}/trigger", chain(http.HandlerFunc(h.TriggerJob)))
	mux.Handle("GET /api/v1/jobs/{id}/next", chain(http.HandlerFunc(h.NextFires)))
}
