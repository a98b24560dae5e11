package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/handlers"
	"github.com/vladcalin/emerald/internal/httpserver/mw"
)

func init() { Register("api", registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(api chi.Router) {
		api.With(mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.PingRateBurst,
			RefillPerIPPerMin: d.PingRatePerMin,
			MaxEntries:        10000,
			TrustProxy:        d.TrustProxy,
		})).Post("/ping", handlers.Ping(d))

		api.Get("/locate", handlers.Locate(d))
		api.Get("/services", handlers.Services(d))
		api.Get("/incidents", handlers.Incidents(d))
		api.Get("/status", handlers.Status(d))

		api.With(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.EnforceHost(d.AllowedHosts, d.Logger),
		).Post("/sweep", handlers.Sweep(d))
	})
}
