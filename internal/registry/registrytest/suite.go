// Package registrytest holds behaviour tests shared by every Repository
// implementation.
package registrytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/registry"
)

// Factory returns an empty repository; it registers its own cleanup.
type Factory func(t *testing.T) registry.Repository

// Base is the reference clock used by the suite.
var Base = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

const window = domain.DefaultLivenessWindow

func hostPort(host string, port int) domain.Endpoint {
	return domain.Endpoint{Host: host, Port: port}
}

// Run runs the whole suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("UpsertCreates", func(t *testing.T) { testUpsertCreates(t, newRepo(t)) })
	t.Run("UpsertRefreshes", func(t *testing.T) { testUpsertRefreshes(t, newRepo(t)) })
	t.Run("UpsertURLEndpoint", func(t *testing.T) { testUpsertURLEndpoint(t, newRepo(t)) })
	t.Run("FindByNamePattern", func(t *testing.T) { testFindByNamePattern(t, newRepo(t)) })
	t.Run("DeadExcludedFromFind", func(t *testing.T) { testDeadExcluded(t, newRepo(t)) })
	t.Run("ConcurrentDistinctEndpoints", func(t *testing.T) { testConcurrentDistinct(t, newRepo(t)) })
	t.Run("ConcurrentSameEndpoint", func(t *testing.T) { testConcurrentSame(t, newRepo(t)) })
	t.Run("CommitSweep", func(t *testing.T) { testCommitSweep(t, newRepo(t)) })
	t.Run("CommitSweepKeepsHeartbeats", func(t *testing.T) { testCommitSweepKeepsHeartbeats(t, newRepo(t)) })
	t.Run("Incidents", func(t *testing.T) { testIncidents(t, newRepo(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newRepo(t).Ping(context.Background())) })
}

func testUpsertCreates(t *testing.T, repo registry.Repository) {
	ctx := context.Background()

	svc, err := repo.Upsert(ctx, "billing", hostPort("10.0.0.1", 8080), Base)
	require.NoError(t, err)
	require.NotEmpty(t, svc.ID)
	require.Equal(t, "billing", svc.Name)
	require.Equal(t, "10.0.0.1:8080", svc.Endpoint.Key())
	require.True(t, svc.FirstSeen.Equal(Base))
	require.True(t, svc.LastSeen.Equal(Base))
	require.Nil(t, svc.LastKnownAlive)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func testUpsertRefreshes(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	ep := hostPort("10.0.0.1", 8080)

	first, err := repo.Upsert(ctx, "billing", ep, Base)
	require.NoError(t, err)

	later := Base.Add(time.Minute)
	for i := 0; i < 5; i++ {
		_, err = repo.Upsert(ctx, "billing-v2", ep, later)
		require.NoError(t, err)
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	require.Equal(t, first.ID, got.ID, "id must be immutable")
	require.Equal(t, "billing-v2", got.Name, "last writer wins on name")
	require.True(t, got.FirstSeen.Equal(Base), "first seen must not move")
	require.True(t, got.LastSeen.Equal(later))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func testUpsertURLEndpoint(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	ep := domain.Endpoint{URL: "http://users.internal:9000"}

	_, err := repo.Upsert(ctx, "users", ep, Base)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "users", ep, Base.Add(time.Second))
	require.NoError(t, err)

	found, err := repo.FindByNamePattern(ctx, "users", Base.Add(time.Second), window)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, ep, found[0].Endpoint)
}

func testFindByNamePattern(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	for i, name := range []string{"abc", "ac", "abbc", "billing.api", "billing+api", "users.api"} {
		_, err := repo.Upsert(ctx, name, hostPort("10.0.1.1", 1000+i), Base)
		require.NoError(t, err)
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{pattern: "abc", want: []string{"abc"}},
		{pattern: "a?c", want: []string{"abc"}},
		{pattern: "a*c", want: []string{"abbc", "abc", "ac"}},
		{pattern: "*.api", want: []string{"billing.api", "users.api"}},
		{pattern: "billing.api", want: []string{"billing.api"}},
		{pattern: "billing?api", want: []string{"billing+api", "billing.api"}},
		{pattern: "*", want: []string{"abbc", "abc", "ac", "billing+api", "billing.api", "users.api"}},
		{pattern: "nothing*", want: []string{}},
		{pattern: "", want: []string{}},
		{pattern: "ABC", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("pattern=%q", tt.pattern), func(t *testing.T) {
			found, err := repo.FindByNamePattern(ctx, tt.pattern, Base.Add(time.Second), window)
			require.NoError(t, err)
			require.Equal(t, tt.want, names(found))
		})
	}
}

func testDeadExcluded(t *testing.T, repo registry.Repository) {
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "worker", hostPort("10.0.2.1", 1), Base)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "worker", hostPort("10.0.2.2", 1), Base.Add(2*time.Minute))
	require.NoError(t, err)

	now := Base.Add(window + time.Minute)
	found, err := repo.FindByNamePattern(ctx, "worker", now, window)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "10.0.2.2:1", found[0].Endpoint.Key())

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "dead services stay registered")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func testConcurrentDistinct(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Upsert(ctx, "fleet", hostPort("10.1.0.1", 2000+i), Base); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, n, count)
}

func testConcurrentSame(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	const n = 8
	ep := hostPort("10.1.0.2", 3000)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Upsert(ctx, fmt.Sprintf("racer-%d", i), ep, Base.Add(time.Duration(i)*time.Millisecond)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "one endpoint must never produce two records")
}

func testCommitSweep(t *testing.T, repo registry.Repository) {
	ctx := context.Background()

	a, err := repo.Upsert(ctx, "a", hostPort("10.2.0.1", 1), Base)
	require.NoError(t, err)
	b, err := repo.Upsert(ctx, "b", hostPort("10.2.0.2", 1), Base)
	require.NoError(t, err)

	inc, err := registry.NewIncident(domain.SeverityHigh, "a died", Base.Add(time.Hour))
	require.NoError(t, err)
	inc.ServiceID = a.ID
	inc.ServiceName = a.Name
	inc.EndpointKey = a.Endpoint.Key()

	flags := map[string]bool{
		a.Endpoint.Key(): false,
		b.Endpoint.Key(): true,
	}
	require.NoError(t, repo.CommitSweep(ctx, flags, []*domain.Incident{inc}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	byKey := make(map[string]*domain.Service, len(all))
	for _, s := range all {
		byKey[s.Endpoint.Key()] = s
	}
	require.NotNil(t, byKey[a.Endpoint.Key()].LastKnownAlive)
	require.False(t, *byKey[a.Endpoint.Key()].LastKnownAlive)
	require.NotNil(t, byKey[b.Endpoint.Key()].LastKnownAlive)
	require.True(t, *byKey[b.Endpoint.Key()].LastKnownAlive)

	incidents, err := repo.ListIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, inc.ID, incidents[0].ID)
	require.Equal(t, domain.SeverityHigh, incidents[0].Severity)
	require.Equal(t, a.ID, incidents[0].ServiceID)
	require.Equal(t, "10.2.0.1:1", incidents[0].EndpointKey)
	require.True(t, incidents[0].CreatedAt.Equal(inc.CreatedAt))

	// An empty commit is valid and changes nothing.
	require.NoError(t, repo.CommitSweep(ctx, nil, nil))
}

func testCommitSweepKeepsHeartbeats(t *testing.T, repo registry.Repository) {
	ctx := context.Background()
	ep := hostPort("10.3.0.1", 1)

	_, err := repo.Upsert(ctx, "svc", ep, Base)
	require.NoError(t, err)

	// A heartbeat lands between the sweep's snapshot and its commit.
	later := Base.Add(time.Minute)
	_, err = repo.Upsert(ctx, "svc-renamed", ep, later)
	require.NoError(t, err)

	require.NoError(t, repo.CommitSweep(ctx, map[string]bool{ep.Key(): true}, nil))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "svc-renamed", all[0].Name)
	require.True(t, all[0].LastSeen.Equal(later), "sweep commit must not roll back a heartbeat")
	require.NotNil(t, all[0].LastKnownAlive)
	require.True(t, *all[0].LastKnownAlive)
}

func testIncidents(t *testing.T, repo registry.Repository) {
	ctx := context.Background()

	empty, err := repo.ListIncidents(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	var ids []string
	for i := 0; i < 3; i++ {
		inc, err := registry.NewIncident(domain.SeverityLow, fmt.Sprintf("incident %d", i), Base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, repo.CommitSweep(ctx, nil, []*domain.Incident{inc}))
		ids = append(ids, inc.ID)
	}

	incidents, err := repo.ListIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, incidents, 3)
	for i, inc := range incidents {
		require.Equal(t, ids[i], inc.ID)
		require.Equal(t, fmt.Sprintf("incident %d", i), inc.Message)
	}
}

func names(services []*domain.Service) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}
