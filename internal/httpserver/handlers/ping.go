package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
)

const maxPingBody = 64 << 10

type pingRequest struct {
	Name string `json:"name"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	URL  string `json:"url,omitempty"`
}

type pingResponse struct {
	OK bool `json:"ok"`
}

// Ping records a heartbeat. The body carries either host+port or url.
func Ping(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pingRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPingBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, d.Logger, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err))
			return
		}

		ok, err := d.Registry.Ping(r.Context(), req.Name, domain.Endpoint{
			Host: req.Host,
			Port: req.Port,
			URL:  req.URL,
		})
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, pingResponse{OK: ok})
	}
}
