package handlers

import (
	"net/http"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/httpserver/respond"
)

type locateResult struct {
	Name string `json:"name"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Locate returns the alive services matching ?pattern=, possibly none.
func Locate(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")

		found, err := d.Registry.Locate(r.Context(), pattern)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		out := make([]locateResult, 0, len(found))
		for _, loc := range found {
			out = append(out, locateResult{
				Name: loc.Name,
				Host: loc.Endpoint.Host,
				Port: loc.Endpoint.Port,
				URL:  loc.Endpoint.URL,
			})
		}
		respond.JSON(w, http.StatusOK, out)
	}
}
