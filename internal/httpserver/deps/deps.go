package deps

import (
	"time"

	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/registry"
	"github.com/vladcalin/emerald/internal/version"
)

type Deps struct {
	Logger         logger.Logger
	AccessLogger   logger.Logger // HTTP access lines; falls back to Logger when nil
	StartTime      time.Time
	Build          version.Info
	TimeNow        func() time.Time     // for testing, defaults to time.Now
	AllowedHosts   []string             // Host headers allowed on admin endpoints
	AllowedCIDRS   []string             // IPs allowed on admin and probe endpoints
	TrustProxy     bool                 // true if running behind a trusted reverse proxy (e.g., cloudflared)
	PingRateBurst  int                  // token bucket size for /api/ping
	PingRatePerMin int                  // token refill per client per minute for /api/ping
	StoreKind      string               // "memory" | "redis" | "sqlite", reported by /infra
	SweepInterval  time.Duration        // reported by /infra
	Registry       *registry.Service    // ping / locate
	Incidents      *registry.IncidentLog // incident history
	Repo           registry.Repository  // storage probe for readiness
	SweepTrigger   chan<- struct{}      // manual liveness sweep, buffered (nil disables /api/sweep)
}

// Now returns the current time using TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
