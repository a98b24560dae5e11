package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
)

// ListIncidents retrieves every incident, oldest first
func (s *Store) ListIncidents(ctx context.Context) ([]*domain.Incident, error) {
	items, err := s.client.LRange(ctx, IncidentsKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.StorageError("list incidents", err)
	}

	incidents := make([]*domain.Incident, 0, len(items))
	for _, item := range items {
		var inc domain.Incident
		if err := json.Unmarshal([]byte(item), &inc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident: %w", err)
		}
		incidents = append(incidents, &inc)
	}

	registry.SortIncidents(incidents)
	return incidents, nil
}

func marshalIncidents(incidents []*domain.Incident) ([]interface{}, error) {
	out := make([]interface{}, 0, len(incidents))
	for _, inc := range incidents {
		data, err := json.Marshal(inc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal incident %s: %w", inc.ID, err)
		}
		out = append(out, data)
	}
	return out, nil
}
