package handlers

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
)

// Services lists every registered service with its current liveness.
func Services(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := d.Registry.Services(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, services)
	}
}

// Incidents lists every incident, oldest first.
func Incidents(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidents, err := d.Incidents.ListAll(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if incidents == nil {
			incidents = []*domain.Incident{}
		}
		respond.JSON(w, http.StatusOK, incidents)
	}
}
