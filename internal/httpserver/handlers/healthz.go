package handlers

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
	"github.com/vladcalin/emerald/internal/version"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	version.Info
}

// Healthz answers as long as the process serves HTTP.
func Healthz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			Info:          d.Build,
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
		})
	}
}
