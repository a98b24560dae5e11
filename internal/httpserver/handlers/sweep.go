package handlers

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
	"github.com/vladcalin/emerald/internal/logger"
)

type sweepResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Sweep queues a liveness sweep ahead of the next tick.
func Sweep(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SweepTrigger == nil {
			respond.JSON(w, http.StatusServiceUnavailable, sweepResponse{Message: "sweeper not running"})
			return
		}

		select {
		case d.SweepTrigger <- struct{}{}:
			d.Logger.Info("manual sweep triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			respond.JSON(w, http.StatusAccepted, sweepResponse{Triggered: true, Message: "sweep triggered"})
		default:
			d.Logger.Warn("sweep already pending",
				logger.String("remote_ip", r.RemoteAddr))
			respond.JSON(w, http.StatusTooManyRequests, sweepResponse{Message: "sweep already pending, please wait"})
		}
	}
}
