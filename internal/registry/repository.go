package registry

import (
	"context"
	"time"

	"github.com/vladcalin/emerald/internal/domain"
)

// DefaultMaxUpsertRetries bounds optimistic retries on a contended endpoint.
const DefaultMaxUpsertRetries = 10

// Repository is the durable store of services and incidents.
//
// It is the only synchronization point between the registration API and
// the liveness sweeper: implementations serialize conflicting writes on an
// endpoint and return snapshot-consistent reads.
type Repository interface {
	// Upsert creates the service for ep or refreshes its name and LastSeen.
	Upsert(ctx context.Context, name string, ep domain.Endpoint, now time.Time) (*domain.Service, error)

	// FindByNamePattern returns the services whose name matches the glob
	// pattern and which are alive at now.
	FindByNamePattern(ctx context.Context, pattern string, now time.Time, window time.Duration) ([]*domain.Service, error)

	// All returns a consistent snapshot of every service, cached liveness
	// flags included.
	All(ctx context.Context) ([]*domain.Service, error)

	// Count returns the number of services, alive or dead.
	Count(ctx context.Context) (int, error)

	// CommitSweep persists the cached liveness flags (keyed by endpoint key)
	// and the incidents raised by one sweep as a single atomic unit.
	CommitSweep(ctx context.Context, flags map[string]bool, incidents []*domain.Incident) error

	// ListIncidents returns every incident, oldest first.
	ListIncidents(ctx context.Context) ([]*domain.Incident, error)

	// Ping checks that the underlying store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// FilterAlive keeps the services of all that match pattern and are alive.
// Stores that cannot push the glob down to their engine use it.
func FilterAlive(all []*domain.Service, pattern string, now time.Time, window time.Duration) []*domain.Service {
	match := domain.CompileGlob(pattern)
	out := make([]*domain.Service, 0)
	for _, s := range all {
		if match(s.Name) && domain.IsAlive(s, now, window) {
			out = append(out, s)
		}
	}
	return out
}
