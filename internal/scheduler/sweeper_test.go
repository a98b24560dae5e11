package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/registry"
	"github.com/vladcalin/emerald/internal/store/memory"
	"github.com/vladcalin/emerald/internal/telemetry"
)

var base = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

const window = 180 * time.Second

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newSweeper(repo registry.Repository, clk *clock, trigger <-chan struct{}) *LivenessSweeper {
	return NewLivenessSweeper(repo, registry.NewIncidentLog(repo, clk.Now), logger.NewNop(), SweeperOptions{
		Interval: time.Hour,
		Window:   window,
		Now:      clk.Now,
		Metrics:  telemetry.NewNop(),
	}, trigger)
}

func incidents(t *testing.T, repo registry.Repository) []*domain.Incident {
	t.Helper()
	out, err := repo.ListIncidents(context.Background())
	require.NoError(t, err)
	return out
}

func TestSweep_Transitions(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	clk := &clock{now: base}
	ls := newSweeper(repo, clk, nil)
	ep := domain.Endpoint{Host: "10.0.0.1", Port: 8080}

	_, err := repo.Upsert(ctx, "billing", ep, base)
	require.NoError(t, err)

	tests := []struct {
		name       string
		heartbeat  *time.Time
		at         time.Time
		want       SweepResult
		wantFlag   bool
		wantLatest domain.Severity
	}{
		{
			name:     "first sweep bootstraps without incident",
			at:       base.Add(time.Second),
			want:     SweepResult{Scanned: 1, Alive: 1, Bootstrapped: 1},
			wantFlag: true,
		},
		{
			name:     "still alive at the window edge",
			at:       base.Add(window),
			want:     SweepResult{Scanned: 1, Alive: 1},
			wantFlag: true,
		},
		{
			name:       "silence past the window raises HIGH",
			at:         base.Add(window + time.Second),
			want:       SweepResult{Scanned: 1, Dead: 1, Incidents: 1},
			wantFlag:   false,
			wantLatest: domain.SeverityHigh,
		},
		{
			name:     "no duplicate while dead",
			at:       base.Add(window + time.Hour),
			want:     SweepResult{Scanned: 1, Dead: 1},
			wantFlag: false,
		},
		{
			name:       "heartbeat after death raises LOW",
			heartbeat:  ptr(base.Add(2 * time.Hour)),
			at:         base.Add(2*time.Hour + time.Second),
			want:       SweepResult{Scanned: 1, Alive: 1, Incidents: 1},
			wantFlag:   true,
			wantLatest: domain.SeverityLow,
		},
	}

	total := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.heartbeat != nil {
				_, err := repo.Upsert(ctx, "billing", ep, *tt.heartbeat)
				require.NoError(t, err)
			}
			clk.Set(tt.at)

			res, err := ls.Sweep(ctx)
			require.NoError(t, err)
			require.Equal(t, tt.want, res)

			all, err := repo.All(ctx)
			require.NoError(t, err)
			require.NotNil(t, all[0].LastKnownAlive)
			require.Equal(t, tt.wantFlag, *all[0].LastKnownAlive)

			total += tt.want.Incidents
			got := incidents(t, repo)
			require.Len(t, got, total)
			if tt.want.Incidents > 0 {
				latest := got[len(got)-1]
				require.Equal(t, tt.wantLatest, latest.Severity)
				require.Equal(t, all[0].ID, latest.ServiceID)
				require.Equal(t, "10.0.0.1:8080", latest.EndpointKey)
				require.True(t, latest.CreatedAt.Equal(tt.at))
			}
		})
	}

	got := incidents(t, repo)
	require.Equal(t, "Service billing (10.0.0.1:8080) changed status from alive to dead", got[0].Message)
	require.Equal(t, "Service billing (10.0.0.1:8080) changed status from dead to alive", got[1].Message)
}

func TestSweep_BootstrapDeadServiceIsSilent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	clk := &clock{now: base.Add(time.Hour)}
	ls := newSweeper(repo, clk, nil)

	_, err := repo.Upsert(ctx, "stale", domain.Endpoint{Host: "10.0.0.2", Port: 1}, base)
	require.NoError(t, err)

	res, err := ls.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 1, Dead: 1, Bootstrapped: 1}, res)
	require.Empty(t, incidents(t, repo))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.False(t, *all[0].LastKnownAlive)
}

func TestSweep_EmptyRegistry(t *testing.T) {
	ls := newSweeper(memory.NewStore(), &clock{now: base}, nil)
	res, err := ls.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, res)
}

type commit struct {
	flags     map[string]bool
	incidents []*domain.Incident
}

type recordingRepo struct {
	registry.Repository

	mu      sync.Mutex
	commits []commit
}

func (r *recordingRepo) CommitSweep(ctx context.Context, flags map[string]bool, incidents []*domain.Incident) error {
	r.mu.Lock()
	r.commits = append(r.commits, commit{flags: flags, incidents: incidents})
	r.mu.Unlock()
	return r.Repository.CommitSweep(ctx, flags, incidents)
}

func TestSweep_WritesThroughIncidentLog(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	rec := &recordingRepo{Repository: repo}
	clk := &clock{now: base}
	ls := NewLivenessSweeper(repo, registry.NewIncidentLog(rec, clk.Now), logger.NewNop(), SweeperOptions{
		Interval: time.Hour,
		Window:   window,
		Now:      clk.Now,
	}, nil)

	svc, err := repo.Upsert(ctx, "billing", domain.Endpoint{Host: "10.0.0.1", Port: 8080}, base)
	require.NoError(t, err)

	_, err = ls.Sweep(ctx)
	require.NoError(t, err)
	clk.Set(base.Add(window + time.Second))
	_, err = ls.Sweep(ctx)
	require.NoError(t, err)

	require.Len(t, rec.commits, 2)
	require.Equal(t, map[string]bool{"10.0.0.1:8080": true}, rec.commits[0].flags)
	require.Empty(t, rec.commits[0].incidents)

	second := rec.commits[1]
	require.Equal(t, map[string]bool{"10.0.0.1:8080": false}, second.flags)
	require.Len(t, second.incidents, 1)
	require.Equal(t, domain.SeverityHigh, second.incidents[0].Severity)
	require.Equal(t, svc.ID, second.incidents[0].ServiceID)
	require.Equal(t, "billing", second.incidents[0].ServiceName)

	require.Len(t, incidents(t, repo), 1)
}

type failingRepo struct {
	registry.Repository
}

func (failingRepo) All(context.Context) ([]*domain.Service, error) {
	return nil, domain.StorageError("list services", errors.New("connection refused"))
}

func TestSweep_StorageErrorIsReturned(t *testing.T) {
	ls := newSweeper(failingRepo{}, &clock{now: base}, nil)
	_, err := ls.Sweep(context.Background())
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestLivenessSweeper_StartSurvivesFailures(t *testing.T) {
	trigger := make(chan struct{}, 1)
	ls := newSweeper(failingRepo{}, &clock{now: base}, trigger)

	require.NoError(t, ls.Start(context.Background()))
	trigger <- struct{}{}
	require.Eventually(t, func() bool { return len(trigger) == 0 }, time.Second, 5*time.Millisecond)
	ls.Stop()
}

func TestLivenessSweeper_ManualTrigger(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	clk := &clock{now: base}
	trigger := make(chan struct{}, 1)
	ls := newSweeper(repo, clk, trigger)

	_, err := repo.Upsert(ctx, "worker", domain.Endpoint{Host: "10.0.0.3", Port: 9}, base)
	require.NoError(t, err)

	require.NoError(t, ls.Start(ctx))
	t.Cleanup(ls.Stop)

	// The initial sweep bootstraps the flag.
	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.NotNil(t, all[0].LastKnownAlive)
	require.True(t, *all[0].LastKnownAlive)

	clk.Set(base.Add(window + time.Minute))
	trigger <- struct{}{}

	require.Eventually(t, func() bool {
		return len(incidents(t, repo)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, domain.SeverityHigh, incidents(t, repo)[0].Severity)
}

func TestLivenessSweeper_StopWaitsAndIsIdempotent(t *testing.T) {
	ls := newSweeper(memory.NewStore(), &clock{now: base}, nil)

	// Stop before Start must not block.
	ls.Stop()

	ls = newSweeper(memory.NewStore(), &clock{now: base}, nil)
	require.NoError(t, ls.Start(context.Background()))
	require.Error(t, ls.Start(context.Background()), "double start")
	ls.Stop()
	ls.Stop()
}

func TestLivenessSweeper_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ls := newSweeper(memory.NewStore(), &clock{now: base}, nil)
	require.NoError(t, ls.Start(ctx))
	cancel()

	select {
	case <-ls.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper goroutine did not exit after cancel")
	}
}

func ptr[T any](v T) *T { return &v }
