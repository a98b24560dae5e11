package mw

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/respond"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/utils"
)

// AllowOnlyCIDRS rejects with 403 every client whose address is outside the
// allowed IPs and CIDRs. An empty list disables the check.
// trustProxy resolves the client from proxy headers (CF-Connecting-IP,
// X-Forwarded-For, X-Real-IP) instead of RemoteAddr.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("client allow-list empty, admin routes open")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("client allow-list enabled",
		logger.Int("rules", len(allowed)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Warn("client rejected by allow-list",
					logger.String("client", ip),
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("path", r.URL.Path))
				respond.Error(w, http.StatusForbidden, "client address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
