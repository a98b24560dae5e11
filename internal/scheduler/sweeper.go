package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladcalin/emerald/internal/domain"
	"github.com/vladcalin/emerald/internal/logger"
	"github.com/vladcalin/emerald/internal/registry"
	"github.com/vladcalin/emerald/internal/telemetry"
)

// DefaultSweepInterval is the period between two liveness sweeps.
const DefaultSweepInterval = 15 * time.Second

// SweeperOptions tunes a LivenessSweeper. Zero values take defaults.
type SweeperOptions struct {
	Interval time.Duration
	Window   time.Duration
	Now      func() time.Time
	Metrics  *telemetry.Metrics
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned      int
	Alive        int
	Dead         int
	Bootstrapped int
	Incidents    int
}

// LivenessSweeper periodically recomputes every service's liveness and
// records an incident for each alive/dead transition.
type LivenessSweeper struct {
	repo          registry.Repository
	incidents     *registry.IncidentLog
	logger        logger.Logger
	metrics       *telemetry.Metrics
	interval      time.Duration
	window        time.Duration
	now           func() time.Time
	manualTrigger <-chan struct{}

	sweepMu  sync.Mutex // one sweep at a time
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLivenessSweeper creates a sweeper that scans repo and writes
// transitions to incidents. Sends on manualTrigger run an extra sweep; it
// may be nil.
func NewLivenessSweeper(
	repo registry.Repository,
	incidents *registry.IncidentLog,
	log logger.Logger,
	opts SweeperOptions,
	manualTrigger <-chan struct{},
) *LivenessSweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Window <= 0 {
		opts.Window = domain.DefaultLivenessWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if incidents == nil {
		incidents = registry.NewIncidentLog(repo, opts.Now)
	}

	return &LivenessSweeper{
		repo:          repo,
		incidents:     incidents,
		logger:        log,
		metrics:       opts.Metrics,
		interval:      opts.Interval,
		window:        opts.Window,
		now:           opts.Now,
		manualTrigger: manualTrigger,
		stopCh:        make(chan struct{}),
	}
}

// Start runs a first sweep, then sweeps every interval in a single
// goroutine until Stop is called or ctx is cancelled. Sweep failures are
// logged and never stop the loop.
func (ls *LivenessSweeper) Start(ctx context.Context) error {
	if ls.done != nil {
		return fmt.Errorf("liveness sweeper already started")
	}
	ls.done = make(chan struct{})

	ls.runOnce(ctx, "initial")

	ticker := time.NewTicker(ls.interval)
	go func() {
		defer close(ls.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ls.runOnce(ctx, "tick")
			case <-ls.manualTrigger:
				ls.logger.Info("manual sweep triggered")
				ls.runOnce(ctx, "manual")
			case <-ls.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	ls.logger.Info("liveness sweeper started",
		logger.Duration("interval", ls.interval),
		logger.Duration("window", ls.window))
	return nil
}

// Stop ends scheduling and waits for an in-flight sweep to finish.
func (ls *LivenessSweeper) Stop() {
	ls.stopOnce.Do(func() { close(ls.stopCh) })
	if ls.done != nil {
		<-ls.done
	}
}

func (ls *LivenessSweeper) runOnce(ctx context.Context, reason string) {
	start := time.Now()
	res, err := ls.Sweep(ctx)
	elapsed := time.Since(start)
	ls.metrics.RecordSweep(ctx, elapsed, err)

	if err != nil {
		ls.logger.Error("liveness sweep failed",
			logger.String("reason", reason),
			logger.Error(err))
		return
	}

	fields := []logger.Field{
		logger.String("reason", reason),
		logger.Int("scanned", res.Scanned),
		logger.Int("alive", res.Alive),
		logger.Int("dead", res.Dead),
		logger.Int("bootstrapped", res.Bootstrapped),
		logger.Int("incidents", res.Incidents),
		logger.Duration("took", elapsed),
	}
	if res.Incidents > 0 {
		ls.logger.Info("liveness sweep completed", fields...)
	} else {
		ls.logger.Debug("liveness sweep completed", fields...)
	}
}

// Sweep evaluates every service once. Flags seen for the first time are
// set from the liveness predicate without an incident; every flip raises
// one incident (LOW when a service comes back, HIGH when it dies). Flags
// and incidents are committed together.
func (ls *LivenessSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	ls.sweepMu.Lock()
	defer ls.sweepMu.Unlock()

	var res SweepResult

	services, err := ls.repo.All(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to snapshot services: %w", err)
	}
	res.Scanned = len(services)

	now := ls.now()
	flags := make(map[string]bool)
	var incidents []*domain.Incident

	for _, svc := range services {
		alive := domain.IsAlive(svc, now, ls.window)
		if alive {
			res.Alive++
		} else {
			res.Dead++
		}

		switch {
		case svc.LastKnownAlive == nil:
			flags[svc.Endpoint.Key()] = alive
			res.Bootstrapped++

		case *svc.LastKnownAlive != alive:
			flags[svc.Endpoint.Key()] = alive

			inc, err := ls.incidents.Transition(svc, *svc.LastKnownAlive, alive, now)
			if err != nil {
				return res, err
			}
			incidents = append(incidents, inc)
		}
	}

	if err := ls.incidents.Commit(ctx, flags, incidents); err != nil {
		return res, fmt.Errorf("failed to commit sweep: %w", err)
	}
	res.Incidents = len(incidents)

	for _, inc := range incidents {
		ls.metrics.RecordIncident(ctx, string(inc.Severity))
		ls.logger.Warn("service liveness changed",
			logger.String("service", inc.ServiceName),
			logger.String("endpoint", inc.EndpointKey),
			logger.String("severity", string(inc.Severity)))
	}

	return res, nil
}
