package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladcalin/emerald/internal/domain"
)

// IncidentLog is the append-only log of liveness transitions.
type IncidentLog struct {
	repo Repository
	now  func() time.Time
}

// NewIncidentLog creates an incident log stored in repo.
func NewIncidentLog(repo Repository, now func() time.Time) *IncidentLog {
	if now == nil {
		now = time.Now
	}
	return &IncidentLog{repo: repo, now: now}
}

// Record appends an incident with the given severity and message.
func (l *IncidentLog) Record(ctx context.Context, severity domain.Severity, message string) (*domain.Incident, error) {
	inc, err := NewIncident(severity, message, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.Commit(ctx, nil, []*domain.Incident{inc}); err != nil {
		return nil, err
	}
	return inc, nil
}

// Transition builds, without storing it, the incident raised when svc
// flips from wasAlive to isAlive at the given time.
func (l *IncidentLog) Transition(svc *domain.Service, wasAlive, isAlive bool, at time.Time) (*domain.Incident, error) {
	if wasAlive == isAlive {
		return nil, fmt.Errorf("%w: no transition for %s", domain.ErrInvalidInput, svc.Endpoint.Key())
	}
	inc, err := NewIncident(
		domain.TransitionSeverity(wasAlive, isAlive),
		domain.TransitionMessage(svc, wasAlive, isAlive),
		at,
	)
	if err != nil {
		return nil, err
	}
	inc.ServiceID = svc.ID
	inc.ServiceName = svc.Name
	inc.EndpointKey = svc.Endpoint.Key()
	return inc, nil
}

// Commit stores incidents together with the cached liveness flags, keyed
// by endpoint key, in one atomic unit.
func (l *IncidentLog) Commit(ctx context.Context, flags map[string]bool, incidents []*domain.Incident) error {
	return l.repo.CommitSweep(ctx, flags, incidents)
}

// ListAll returns every incident ordered by creation time.
func (l *IncidentLog) ListAll(ctx context.Context) ([]*domain.Incident, error) {
	incidents, err := l.repo.ListIncidents(ctx)
	if err != nil {
		return nil, err
	}
	SortIncidents(incidents)
	return incidents, nil
}

// NewIncident builds an incident with a time-ordered ID.
func NewIncident(severity domain.Severity, message string, at time.Time) (*domain.Incident, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate incident id: %w", err)
	}
	return &domain.Incident{
		ID:        id.String(),
		Severity:  severity,
		Message:   message,
		CreatedAt: at,
	}, nil
}

// SortIncidents orders incidents by CreatedAt, keeping insertion order on ties.
func SortIncidents(incidents []*domain.Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.Before(incidents[j].CreatedAt)
	})
}
