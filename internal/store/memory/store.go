package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
)

// Store keeps services and incidents in process memory.
// Nothing survives a restart; it backs tests and single-node dev setups.
type Store struct {
	mu        sync.RWMutex
	services  map[string]*domain.Service // endpoint key -> service
	order     []string                   // endpoint keys in insertion order
	incidents []*domain.Incident
}

var _ registry.Repository = (*Store)(nil)

// NewStore creates an empty memory store.
func NewStore() *Store {
	return &Store{
		services: make(map[string]*domain.Service),
	}
}

// Upsert creates or refreshes the service registered at ep.
func (s *Store) Upsert(_ context.Context, name string, ep domain.Endpoint, now time.Time) (*domain.Service, error) {
	key := ep.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, ok := s.services[key]; ok {
		svc.Name = name
		svc.LastSeen = now
		return clone(svc), nil
	}

	svc := &domain.Service{
		ID:        uuid.NewString(),
		Name:      name,
		Endpoint:  ep,
		FirstSeen: now,
		LastSeen:  now,
	}
	s.services[key] = svc
	s.order = append(s.order, key)
	return clone(svc), nil
}

// FindByNamePattern returns alive services whose name matches pattern.
func (s *Store) FindByNamePattern(ctx context.Context, pattern string, now time.Time, window time.Duration) ([]*domain.Service, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return registry.FilterAlive(all, pattern, now, window), nil
}

// All returns copies of every service in insertion order.
func (s *Store) All(_ context.Context) ([]*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Service, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, clone(s.services[key]))
	}
	return out, nil
}

// Count returns the number of registered services.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.services), nil
}

// CommitSweep stores the liveness flags and incidents under one lock.
func (s *Store) CommitSweep(_ context.Context, flags map[string]bool, incidents []*domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, alive := range flags {
		if svc, ok := s.services[key]; ok {
			v := alive
			svc.LastKnownAlive = &v
		}
	}
	for _, inc := range incidents {
		c := *inc
		s.incidents = append(s.incidents, &c)
	}
	return nil
}

// ListIncidents returns copies of every incident, oldest first.
func (s *Store) ListIncidents(_ context.Context) ([]*domain.Incident, error) {
	s.mu.RLock()
	out := make([]*domain.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		c := *inc
		out = append(out, &c)
	}
	s.mu.RUnlock()

	registry.SortIncidents(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func clone(svc *domain.Service) *domain.Service {
	c := *svc
	if svc.LastKnownAlive != nil {
		v := *svc.LastKnownAlive
		c.LastKnownAlive = &v
	}
	return &c
}
