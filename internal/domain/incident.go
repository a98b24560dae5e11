package domain

import (
	"fmt"
	"time"
)

// Severity classifies an incident.
type Severity string

const (
	// SeverityLow is raised when a service comes back (dead -> alive).
	SeverityLow Severity = "LOW"
	// SeverityHigh is raised when a service stops pinging (alive -> dead).
	SeverityHigh Severity = "HIGH"
)

// Incident is an append-only record of a liveness transition.
//
// It references the service by value so that its lifecycle is
// independent from the service record.
type Incident struct {
	ID          string    `json:"id"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	ServiceID   string    `json:"service_id,omitempty"`
	ServiceName string    `json:"service_name,omitempty"`
	EndpointKey string    `json:"endpoint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransitionSeverity returns the severity of a wasAlive -> isAlive flip.
func TransitionSeverity(wasAlive, isAlive bool) Severity {
	if isAlive && !wasAlive {
		return SeverityLow
	}
	return SeverityHigh
}

// TransitionMessage describes a status change of s.
func TransitionMessage(s *Service, wasAlive, isAlive bool) string {
	return fmt.Sprintf("Service %s (%s) changed status from %s to %s",
		s.Name, s.Endpoint.Key(), StatusLabel(wasAlive), StatusLabel(isAlive))
}
