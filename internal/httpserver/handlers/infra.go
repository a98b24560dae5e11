package handlers

import (
	"context"
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
)

type componentStatus struct {
	OK             bool   `json:"ok"`
	ServicesLoaded *int   `json:"services_loaded,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Interval       string `json:"interval,omitempty"`
	Error          string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the registry's components.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"store": checkStore(r.Context(), d),
			"sweeper": {
				OK:       d.SweepTrigger != nil,
				Interval: d.SweepInterval.String(),
			},
		}

		respond.JSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// Without storage neither ping nor locate can work.
	if store, exists := components["store"]; exists && !store.OK {
		return "critical"
	}
	if sweeper, exists := components["sweeper"]; exists && !sweeper.OK {
		return "degraded"
	}
	return "operational"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := d.Repo.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: d.StoreKind, Error: err.Error()}
	}

	count, err := d.Repo.Count(ctx)
	if err != nil {
		return componentStatus{OK: false, Mode: d.StoreKind, Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: d.StoreKind, ServicesLoaded: &count}
}
