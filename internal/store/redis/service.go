package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
)

// serviceRecord is the JSON stored under ServiceKey. The cached liveness
// flag lives in its own hash so sweeps never rewrite heartbeat fields.
type serviceRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Endpoint  domain.Endpoint `json:"endpoint"`
	FirstSeen time.Time       `json:"first_seen"`
	LastSeen  time.Time       `json:"last_seen"`
}

// snapshotScript reads every service and its cached flag in one atomic step.
// It returns a flat list of (endpoint key, record, flag) triples.
var snapshotScript = redis.NewScript(`
local keys = redis.call('SMEMBERS', KEYS[1])
local out = {}
for _, k in ipairs(keys) do
  out[#out + 1] = k
  out[#out + 1] = redis.call('GET', ARGV[1] .. k)
  out[#out + 1] = redis.call('HGET', KEYS[2], k)
end
return out
`)

// Store handles Redis operations for services and incidents
type Store struct {
	client     *redis.Client
	maxRetries int
}

var _ registry.Repository = (*Store)(nil)

// NewStore creates a new Redis store. maxRetries bounds optimistic
// transaction retries on a contended endpoint.
func NewStore(client *redis.Client, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = registry.DefaultMaxUpsertRetries
	}
	return &Store{
		client:     client,
		maxRetries: maxRetries,
	}
}

// Upsert creates or refreshes the service registered at ep.
// The read-modify-write runs under WATCH on the service key, so two
// first pings racing on one endpoint can never both create a record.
func (s *Store) Upsert(ctx context.Context, name string, ep domain.Endpoint, now time.Time) (*domain.Service, error) {
	endpointKey := ep.Key()
	key := ServiceKey(endpointKey)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var out *domain.Service
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := getRecord(ctx, tx, key)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &serviceRecord{
					ID:        uuid.NewString(),
					Endpoint:  ep,
					FirstSeen: now,
				}
			}
			rec.Name = name
			rec.LastSeen = now

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal service: %w", err)
			}

			flag, err := tx.HGet(ctx, AliveKey(), endpointKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to read liveness flag: %w", err)
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.SAdd(ctx, AllServicesKey(), endpointKey)
				return nil
			}); err != nil {
				return err
			}

			out = rec.toDomain(flag)
			return nil
		}, key)

		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			if err := backoff(ctx, attempt); err != nil {
				return nil, domain.StorageError("upsert", err)
			}
		default:
			return nil, domain.StorageError("upsert", err)
		}
	}

	return nil, domain.StorageError("upsert",
		fmt.Errorf("%w: %d attempts on %s", domain.ErrConflictRetryExhausted, s.maxRetries, endpointKey))
}

// FindByNamePattern returns alive services whose name matches pattern.
func (s *Store) FindByNamePattern(ctx context.Context, pattern string, now time.Time, window time.Duration) ([]*domain.Service, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return registry.FilterAlive(all, pattern, now, window), nil
}

// All returns every service from a single atomic snapshot, oldest first.
func (s *Store) All(ctx context.Context) ([]*domain.Service, error) {
	raw, err := snapshotScript.Run(ctx, s.client,
		[]string{AllServicesKey(), AliveKey()}, KeyPrefixService).Slice()
	if err != nil {
		return nil, domain.StorageError("snapshot", err)
	}

	services := make([]*domain.Service, 0, len(raw)/3)
	for i := 0; i+2 < len(raw); i += 3 {
		data, ok := raw[i+1].(string)
		if !ok {
			// set member without a record; skip it like a missing key
			continue
		}
		var rec serviceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal service %v: %w", raw[i], err)
		}
		flag, _ := raw[i+2].(string)
		services = append(services, rec.toDomain(flag))
	}

	sort.SliceStable(services, func(i, j int) bool {
		if !services[i].FirstSeen.Equal(services[j].FirstSeen) {
			return services[i].FirstSeen.Before(services[j].FirstSeen)
		}
		return services[i].Endpoint.Key() < services[j].Endpoint.Key()
	})
	return services, nil
}

// Count returns the number of registered services.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, AllServicesKey()).Result()
	if err != nil {
		return 0, domain.StorageError("count", err)
	}
	return int(n), nil
}

// CommitSweep writes liveness flags and incidents in one MULTI/EXEC.
func (s *Store) CommitSweep(ctx context.Context, flags map[string]bool, incidents []*domain.Incident) error {
	if len(flags) == 0 && len(incidents) == 0 {
		return nil
	}

	payloads, err := marshalIncidents(incidents)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(flags) > 0 {
			values := make(map[string]interface{}, len(flags))
			for key, alive := range flags {
				values[key] = encodeFlag(alive)
			}
			pipe.HSet(ctx, AliveKey(), values)
		}
		if len(payloads) > 0 {
			pipe.RPush(ctx, IncidentsKey(), payloads...)
		}
		return nil
	})
	if err != nil {
		return domain.StorageError("commit sweep", err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.StorageError("ping", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func getRecord(ctx context.Context, tx *redis.Tx, key string) (*serviceRecord, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	var rec serviceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal service: %w", err)
	}
	return &rec, nil
}

func (r *serviceRecord) toDomain(flag string) *domain.Service {
	svc := &domain.Service{
		ID:        r.ID,
		Name:      r.Name,
		Endpoint:  r.Endpoint,
		FirstSeen: r.FirstSeen,
		LastSeen:  r.LastSeen,
	}
	if flag != "" {
		alive := flag == "1"
		svc.LastKnownAlive = &alive
	}
	return svc
}

func encodeFlag(alive bool) string {
	if alive {
		return "1"
	}
	return "0"
}

// backoff sleeps a short, growing, jittered delay before the next attempt.
func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*time.Millisecond + time.Duration(rand.IntN(1000))*time.Microsecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
