package mw

import (
	"net/http"
	"strings"

	"github.com/vladcalin/emerald/internal/httpserver/respond"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/utils"
)

// EnforceHost rejects with 403 requests whose Host header, port ignored, is
// not one of allowedHosts. "*.example.com" accepts any subdomain of
// example.com but not example.com itself. An empty list disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = normalizeHost(h); h != "" {
			patterns = append(patterns, h)
		}
	}
	if len(patterns) == 0 {
		log.Debug("host allow-list empty, any Host accepted")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("host allow-list enabled", logger.String("hosts", strings.Join(patterns, ",")))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := normalizeHost(r.Host)
			for _, pattern := range patterns {
				if matchHost(host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("request rejected by host allow-list",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			respond.Error(w, http.StatusForbidden, "host not allowed")
		})
	}
}

// normalizeHost lowercases a Host value and drops its port, IPv6 brackets
// and trailing dot.
func normalizeHost(h string) string {
	h = utils.ParseHostNoPort(strings.TrimSpace(h))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	h = strings.TrimSuffix(h, ".")
	return strings.ToLower(h)
}

// matchHost compares normalized values.
func matchHost(host, pattern string) bool {
	if host == "" {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	return host == pattern
}
