package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

// ErrStopped is returned by Tick after Stop.
var ErrStopped = errors.New("scheduler stopped")

// State is the orchestrator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status is the lifecycle state plus the pipeline running, if any.
type Status struct {
	State    State    `json:"state"`
	Pipeline Pipeline `json:"pipeline,omitempty"`
}

// Notifier runs the per event type notification steps against one store handle.
type Notifier interface {
	NotifyContractExpiry(ctx context.Context, store service.Store, days int) (int, error)
	NotifyDocumentExpiry(ctx context.Context, store service.Store, days int) (int, error)
	NotifyPaymentDue(ctx context.Context, store service.Store) (int, error)
	CleanupOldNotifications(ctx context.Context, store service.Store, daysOld int) (int64, error)
}

// Options configures tiers, retention and cron triggers.
type Options struct {
	Tiers       []int
	CleanupDays int
	Location    *time.Location
	// Locker, when set, serializes ticks across processes.
	Locker Locker

	ContractExpiryCron string
	DocumentExpiryCron string
	PaymentDueCron     string
	CleanupCron        string
}

// Scheduler is the cycle orchestrator. Ticks never overlap; a stop request is
// honored between pipelines and never interrupts one mid-run.
type Scheduler struct {
	sessions service.Sessions
	notifier Notifier
	opts     Options

	mu       sync.Mutex
	state    atomic.Int32
	current  atomic.Pointer[Pipeline]
	stopping atomic.Bool
	cron     *cron.Cron
}

func New(sessions service.Sessions, notifier Notifier, opts Options) *Scheduler {
	if len(opts.Tiers) == 0 {
		opts.Tiers = []int{30, 7, 1}
	}
	tiers := append([]int(nil), opts.Tiers...)
	sort.Sort(sort.Reverse(sort.IntSlice(tiers)))
	opts.Tiers = tiers

	if opts.CleanupDays <= 0 {
		opts.CleanupDays = 90
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		sessions: sessions,
		notifier: notifier,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Status returns the current state and, while running, the pipeline in progress.
func (s *Scheduler) Status() Status {
	st := Status{State: s.State()}
	if p := s.current.Load(); p != nil && st.State == StateRunning {
		st.Pipeline = *p
	}
	return st
}

// Tick runs the named pipelines in order, or the notification pipelines when
// none are named. A store session is held for the whole tick and released on
// every path. Pipeline failures are recorded in the report, not returned.
func (s *Scheduler) Tick(ctx context.Context, pipelines ...Pipeline) (Report, error) {
	if len(pipelines) == 0 {
		pipelines = NotificationPipelines
	}
	if s.stopping.Load() {
		return Report{}, ErrStopped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.settle()

	if s.stopping.Load() {
		return Report{}, ErrStopped
	}

	report := Report{TickID: uuid.NewString()}
	ctx = context.WithValue(ctx, logger.TickIDKey, report.TickID)

	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.Acquire(ctx)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				ticksSkippedTotal.Inc()
				logger.Info(ctx, "tick skipped, lock held elsewhere")
			}
			return report, err
		}
		defer unlock()
	}

	store, release, err := s.sessions.Session(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", service.ErrStoreUnavailable, err)
		logger.Error(ctx, "failed to open store session", "error", err)
		for _, p := range pipelines {
			report.Results = append(report.Results, failedResult(p, err))
			pipelineRunsTotal.WithLabelValues(string(p), "error").Inc()
		}
		return report, nil
	}
	defer release()

	start := time.Now()
	for _, p := range pipelines {
		if s.stopping.Load() {
			report.Stopped = true
			logger.Info(ctx, "stop requested, skipping remaining pipelines", "next", string(p))
			break
		}
		s.current.Store(&p)
		s.state.Store(int32(StateRunning))
		res := s.runPipeline(ctx, store, p)
		s.state.Store(int32(StateIdle))
		s.current.Store(nil)
		report.Results = append(report.Results, res)
	}

	logger.Info(ctx, "tick completed",
		"pipelines", len(report.Results),
		"created", report.Created(),
		"failed", len(report.Failed()),
		"duration", time.Since(start),
	)
	return report, nil
}

// settle moves to Stopped once a stop request meets an idle orchestrator.
// Must be called with mu held.
func (s *Scheduler) settle() {
	if s.stopping.Load() {
		s.state.Store(int32(StateStopped))
	} else {
		s.state.Store(int32(StateIdle))
	}
}

func (s *Scheduler) runPipeline(ctx context.Context, store service.Store, p Pipeline) (res Result) {
	ctx = context.WithValue(ctx, logger.PipelineKey, string(p))
	res.Pipeline = p
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("pipeline %s panicked: %v", p, r)
			logger.Error(ctx, "pipeline panicked", "panic", r, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		pipelineDuration.WithLabelValues(string(p)).Observe(res.Duration.Seconds())
		if res.Err != nil {
			res.Error = res.Err.Error()
			pipelineRunsTotal.WithLabelValues(string(p), "error").Inc()
			logger.Error(ctx, "pipeline failed", "created", res.Created, "error", res.Err)
			return
		}
		pipelineRunsTotal.WithLabelValues(string(p), "ok").Inc()
		lastSuccess.WithLabelValues(string(p)).SetToCurrentTime()
	}()

	switch p {
	case ContractExpiry:
		s.runTiers(ctx, store, &res, s.notifier.NotifyContractExpiry)
	case DocumentExpiry:
		s.runTiers(ctx, store, &res, s.notifier.NotifyDocumentExpiry)
	case PaymentDue:
		res.Created, res.Err = s.notifier.NotifyPaymentDue(ctx, store)
	case Cleanup:
		res.Deleted, res.Err = s.notifier.CleanupOldNotifications(ctx, store, s.opts.CleanupDays)
	default:
		res.Err = fmt.Errorf("unknown pipeline %q", p)
	}
	return res
}

// runTiers scans each lookahead tier in descending order. The first failing
// tier ends the pipeline; counts from earlier tiers are kept.
func (s *Scheduler) runTiers(ctx context.Context, store service.Store, res *Result, notify func(context.Context, service.Store, int) (int, error)) {
	for _, days := range s.opts.Tiers {
		n, err := notify(ctx, store, days)
		res.Created += n
		res.Tiers = append(res.Tiers, TierResult{Days: days, Created: n})
		if err != nil {
			res.Err = fmt.Errorf("%d day tier: %w", days, err)
			return
		}
	}
}

func failedResult(p Pipeline, err error) Result {
	return Result{Pipeline: p, Err: err, Error: err.Error()}
}

// Stop prevents further ticks and waits for a running pipeline to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	s.mu.Lock()
	c := s.cron
	s.state.Store(int32(StateStopped))
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// Run registers the cron triggers and blocks until ctx is done, then stops.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.stopping.Load() {
		return ErrStopped
	}

	cronLog := cron.PrintfLogger(logger.StdLogger(slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	jobs := []struct {
		spec     string
		pipeline Pipeline
	}{
		{s.opts.ContractExpiryCron, ContractExpiry},
		{s.opts.DocumentExpiryCron, DocumentExpiry},
		{s.opts.PaymentDueCron, PaymentDue},
		{s.opts.CleanupCron, Cleanup},
	}
	for _, job := range jobs {
		if job.spec == "" {
			logger.Warn(ctx, "no schedule configured, pipeline disabled", "pipeline", string(job.pipeline))
			continue
		}
		p := job.pipeline
		if _, err := c.AddFunc(job.spec, func() { s.trigger(ctx, p) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", p, job.spec, err)
		}
		logger.Info(ctx, "pipeline scheduled", "pipeline", string(p), "cron", job.spec)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	logger.Info(ctx, "scheduler started", "timezone", s.opts.Location.String(), "tiers", s.opts.Tiers)

	<-ctx.Done()
	logger.Info(ctx, "shutting down scheduler")
	s.Stop()
	<-c.Stop().Done()
	logger.Info(ctx, "scheduler stopped")
	return nil
}

func (s *Scheduler) trigger(ctx context.Context, p Pipeline) {
	if _, err := s.Tick(context.WithoutCancel(ctx), p); err != nil && !errors.Is(err, ErrLocked) {
		logger.Warn(ctx, "scheduled tick not run", "pipeline", string(p), "error", err)
	}
}
