package handlers

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
)

type statusResponse struct {
	Services      int     `json:"services"`
	Alive         int     `json:"alive"`
	Dead          int     `json:"dead"`
	Incidents     int     `json:"incidents"`
	LivenessSec   float64 `json:"liveness_window_seconds"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
}

// Status summarizes the registry.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := d.Registry.Services(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		incidents, err := d.Incidents.ListAll(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		resp := statusResponse{
			Services:      len(services),
			Incidents:     len(incidents),
			LivenessSec:   d.Registry.LivenessWindow().Seconds(),
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			Version:       d.Build.Version,
		}
		for _, s := range services {
			if s.Alive {
				resp.Alive++
			} else {
				resp.Dead++
			}
		}
		respond.JSON(w, http.StatusOK, resp)
	}
}
