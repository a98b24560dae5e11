package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladcalin/emerald/internal/httpserver/deps"
	"github.com/vladcalin/emerald/internal/logger"
)

type (
	// Registrar mounts a group of routes.
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type group struct {
	name string
	reg  Registrar
	mws  []Middleware
}

var groups []group

// Register adds a named route group, optionally wrapped in middlewares
// scoped to that group. Call it from init; a duplicate name panics.
func Register(name string, reg Registrar, mws ...Middleware) {
	for _, g := range groups {
		if g.name == name {
			panic(fmt.Sprintf("routes: group %q registered twice", name))
		}
	}
	groups = append(groups, group{name: name, reg: reg, mws: mws})
}

// Groups lists the registered group names in mount order.
func Groups() []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.name
	}
	return names
}

// RegisterAll mounts every group on r. Called once from httpserver.NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, g := range groups {
		r.Group(func(gr chi.Router) {
			if len(g.mws) > 0 {
				gr.Use(g.mws...)
			}
			g.reg(gr, d)
		})
		if d.Logger != nil {
			d.Logger.Debug("route group mounted",
				logger.String("group", g.name),
				logger.Int("middlewares", len(g.mws)))
		}
	}
}
