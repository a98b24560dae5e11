package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/telemetry"
)

// Options configures a Service.
type Options struct {
	LivenessWindow time.Duration    // defaults to domain.DefaultLivenessWindow
	Now            func() time.Time // defaults to time.Now
	Metrics        *telemetry.Metrics
}

// Location is one answer to a locate query.
type Location struct {
	Name     string          `json:"name"`
	Endpoint domain.Endpoint `json:"endpoint"`
}

// Service is the registration API: services announce themselves with Ping
// and clients find them with Locate.
type Service struct {
	repo    Repository
	logger  logger.Logger
	window  time.Duration
	now     func() time.Time
	metrics *telemetry.Metrics
}

// NewService creates a registration service on top of repo.
func NewService(repo Repository, log logger.Logger, opts Options) *Service {
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = domain.DefaultLivenessWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    repo,
		logger:  log,
		window:  opts.LivenessWindow,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

// LivenessWindow returns the window used to decide liveness.
func (s *Service) LivenessWindow() time.Duration { return s.window }

// Ping records a heartbeat from the service instance at ep.
// The first ping for an endpoint registers it.
func (s *Service) Ping(ctx context.Context, name string, ep domain.Endpoint) (bool, error) {
	if name == "" {
		err := fmt.Errorf("%w: service name is required", domain.ErrInvalidInput)
		s.metrics.RecordPing(ctx, err)
		return false, err
	}
	if err := ep.Validate(); err != nil {
		s.metrics.RecordPing(ctx, err)
		return false, err
	}

	svc, err := s.repo.Upsert(ctx, name, ep, s.now())
	s.metrics.RecordPing(ctx, err)
	if err != nil {
		s.logger.Warn("heartbeat rejected by storage",
			logger.String("name", name),
			logger.String("endpoint", ep.Key()),
			logger.Error(err))
		return false, err
	}

	s.logger.Debug("heartbeat",
		logger.String("id", svc.ID),
		logger.String("name", svc.Name),
		logger.String("endpoint", ep.Key()))
	return true, nil
}

// Locate returns the alive services whose name matches the glob pattern.
// No match is not an error: the result is then empty.
func (s *Service) Locate(ctx context.Context, pattern string) ([]Location, error) {
	services, err := s.repo.FindByNamePattern(ctx, pattern, s.now(), s.window)
	s.metrics.RecordLocate(ctx, len(services), err)
	if err != nil {
		return nil, err
	}

	out := make([]Location, 0, len(services))
	for _, svc := range services {
		out = append(out, Location{Name: svc.Name, Endpoint: svc.Endpoint})
	}
	return out, nil
}

// ServiceStatus is a service with its liveness evaluated at query time.
type ServiceStatus struct {
	*domain.Service
	Alive bool `json:"alive"`
}

// Services lists every service, alive ones first, most recently seen first.
func (s *Service) Services(ctx context.Context) ([]ServiceStatus, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]ServiceStatus, 0, len(all))
	for _, svc := range all {
		out = append(out, ServiceStatus{Service: svc, Alive: domain.IsAlive(svc, now, s.window)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Alive != out[j].Alive {
			return out[i].Alive
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

// Count returns the number of registered services, alive or dead.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
