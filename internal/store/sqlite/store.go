package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/ncruces/go-sqlite3"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
)

const serviceColumns = `id, name, host, port, url, first_seen, last_seen, last_known_alive`

const upsertQuery = `
INSERT INTO services (id, endpoint_key, name, host, port, url, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (endpoint_key) DO UPDATE SET
    name      = excluded.name,
    last_seen = excluded.last_seen
RETURNING ` + serviceColumns

const insertIncidentQuery = `
INSERT INTO incidents (id, severity, message, service_id, service_name, endpoint_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// Store persists services and incidents in a SQLite database.
type Store struct {
	db         *sql.DB
	maxRetries int
}

var _ registry.Repository = (*Store)(nil)

// NewStore wraps an open database; see Open. maxRetries bounds attempts
// on a locked database.
func NewStore(db *sql.DB, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = registry.DefaultMaxUpsertRetries
	}
	return &Store{db: db, maxRetries: maxRetries}
}

// Upsert creates or refreshes the service registered at ep in a single
// statement; the UNIQUE endpoint_key constraint keeps one row per endpoint.
func (s *Store) Upsert(ctx context.Context, name string, ep domain.Endpoint, now time.Time) (*domain.Service, error) {
	key := ep.Key()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		row := s.db.QueryRowContext(ctx, upsertQuery,
			uuid.NewString(), key, name, ep.Host, ep.Port, ep.URL, now.UnixNano(), now.UnixNano())

		svc, err := scanService(row)
		switch {
		case err == nil:
			return svc, nil
		case errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED):
			if err := backoff(ctx, attempt); err != nil {
				return nil, domain.StorageError("upsert", err)
			}
		default:
			return nil, domain.StorageError("upsert", err)
		}
	}

	return nil, domain.StorageError("upsert",
		fmt.Errorf("%w: endpoint %s locked after %d attempts", domain.ErrConflictRetryExhausted, key, s.maxRetries))
}

// FindByNamePattern returns alive services whose name matches pattern.
// Liveness and exact names are filtered in SQL, wildcards in Go.
func (s *Store) FindByNamePattern(ctx context.Context, pattern string, now time.Time, window time.Duration) ([]*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE last_seen >= ?`
	args := []any{now.Add(-window).UnixNano()}
	if !domain.HasWildcard(pattern) {
		query += ` AND name = ?`
		args = append(args, pattern)
	}

	rows, err := s.db.QueryContext(ctx, query+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, domain.StorageError("find", err)
	}
	candidates, err := scanServices(rows)
	if err != nil {
		return nil, domain.StorageError("find", err)
	}
	return registry.FilterAlive(candidates, pattern, now, window), nil
}

// All returns every service in registration order.
func (s *Store) All(ctx context.Context) ([]*domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY rowid`)
	if err != nil {
		return nil, domain.StorageError("list services", err)
	}
	out, err := scanServices(rows)
	if err != nil {
		return nil, domain.StorageError("list services", err)
	}
	return out, nil
}

// Count returns the number of registered services.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&n); err != nil {
		return 0, domain.StorageError("count", err)
	}
	return n, nil
}

// CommitSweep updates the cached flags and appends the incidents in one
// transaction. Only last_known_alive is written, so heartbeats that landed
// after the sweep's snapshot are preserved.
func (s *Store) CommitSweep(ctx context.Context, flags map[string]bool, incidents []*domain.Incident) error {
	if len(flags) == 0 && len(incidents) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("commit sweep", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, alive := range flags {
		if _, err := tx.ExecContext(ctx,
			`UPDATE services SET last_known_alive = ? WHERE endpoint_key = ?`, alive, key); err != nil {
			return domain.StorageError("commit sweep", err)
		}
	}
	for _, inc := range incidents {
		if err := insertIncident(ctx, tx, inc); err != nil {
			return domain.StorageError("commit sweep", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.StorageError("commit sweep", err)
	}
	return nil
}

// ListIncidents returns every incident, oldest first.
func (s *Store) ListIncidents(ctx context.Context) ([]*domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, severity, message, service_id, service_name, endpoint_key, created_at
FROM incidents ORDER BY created_at, seq`)
	if err != nil {
		return nil, domain.StorageError("list incidents", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*domain.Incident, 0)
	for rows.Next() {
		var (
			inc      domain.Incident
			severity string
			created  int64
		)
		if err := rows.Scan(&inc.ID, &severity, &inc.Message, &inc.ServiceID,
			&inc.ServiceName, &inc.EndpointKey, &created); err != nil {
			return nil, domain.StorageError("list incidents", err)
		}
		inc.Severity = domain.Severity(severity)
		inc.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list incidents", err)
	}
	return out, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.StorageError("ping", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func insertIncident(ctx context.Context, tx *sql.Tx, inc *domain.Incident) error {
	_, err := tx.ExecContext(ctx, insertIncidentQuery,
		inc.ID, string(inc.Severity), inc.Message, inc.ServiceID, inc.ServiceName,
		inc.EndpointKey, inc.CreatedAt.UnixNano())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*domain.Service, error) {
	var (
		svc             domain.Service
		firstSeen, last int64
		alive           sql.NullBool
	)
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Endpoint.Host, &svc.Endpoint.Port,
		&svc.Endpoint.URL, &firstSeen, &last, &alive); err != nil {
		return nil, err
	}
	svc.FirstSeen = time.Unix(0, firstSeen).UTC()
	svc.LastSeen = time.Unix(0, last).UTC()
	if alive.Valid {
		v := alive.Bool
		svc.LastKnownAlive = &v
	}
	return &svc, nil
}

func scanServices(rows *sql.Rows) ([]*domain.Service, error) {
	defer func() { _ = rows.Close() }()

	out := make([]*domain.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// backoff sleeps before retry attempt+1, giving up when ctx ends.
func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt) * 5 * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
