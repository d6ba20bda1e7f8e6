package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Operation identifies one of the lifecycle stages the scheduler can drive
// independently.
type Operation string

const (
	OpDecay     Operation = "decay"
	OpPromotion Operation = "promotion"
	OpCleanup   Operation = "cleanup"
)

// AgentKey identifies one (userId, agentId) pair the scheduler drives.
type AgentKey struct {
	UserID  string
	AgentID string
}

// RunKey identifies one operation running for one agent — the scheduler's
// reentry-guard and job-map key, since decay/promotion/cleanup run as
// independent gocron jobs with independent cadences.
type RunKey struct {
	Op      Operation
	UserID  string
	AgentID string
}

// OperationSchedule controls concurrency, cadence, and retry behaviour for
// one lifecycle operation. An Interval of 0 and an empty CronExpr disables
// the operation entirely — Register skips scheduling it.
type OperationSchedule struct {
	// Interval is used when CronExpr is empty (the common case: run every
	// fixed duration). CronExpr, when set, takes an absolute 5-field cron
	// expression for operators who want wall-clock schedules ("0 3 * * *")
	// instead of a plain interval; it is validated with robfig/cron before
	// being handed to gocron, matching scheduler_service.go's use of the two
	// libraries side by side (gocron for the run loop, robfig/cron for
	// expression parsing/validation).
	Interval     time.Duration
	CronExpr     string
	MaxRetries   int
	RetryBackoff time.Duration
}

// enabled reports whether this schedule should be registered at all.
func (s OperationSchedule) enabled() bool {
	return s.Interval > 0 || s.CronExpr != ""
}

// SchedulerConfig bundles one OperationSchedule per lifecycle stage plus the
// scheduler's global concurrency cap.
type SchedulerConfig struct {
	Decay                   OperationSchedule
	Promotion               OperationSchedule
	Cleanup                 OperationSchedule
	MaxConcurrentOperations int
}

// Scheduler triggers Manager's per-stage methods for a fixed set of agents,
// one gocron job per (operation, agentId), capping concurrent runs and
// refusing to start a run already in flight for the same (op, userId,
// agentId) (spec §4.7 "scheduler safety"). Adapted from
// scheduler_service.go's gocron wiring; that file schedules per-user
// workflow executions loaded from MongoDB, this one schedules fixed
// lifecycle operations across a statically registered agent set.
type Scheduler struct {
	manager *Manager
	logger  *logrus.Logger

	scheduler gocron.Scheduler
	sem       chan struct{}

	mu      sync.Mutex
	running map[RunKey]bool
	jobs    map[RunKey]gocron.Job
}

// NewScheduler builds a Scheduler. logger may be nil, in which case a
// default logrus.Logger is used.
func NewScheduler(manager *Manager, cfg SchedulerConfig, logger *logrus.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle scheduler: %w", err)
	}

	if logger == nil {
		logger = logrus.New()
	}

	concurrency := cfg.MaxConcurrentOperations
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Scheduler{
		manager:   manager,
		logger:    logger,
		scheduler: sched,
		sem:       make(chan struct{}, concurrency),
		running:   make(map[RunKey]bool),
		jobs:      make(map[RunKey]gocron.Job),
	}, nil
}

// Register schedules periodic decay, promotion, and cleanup runs for one
// agent, each as its own gocron job with its own cadence. An operation whose
// OperationSchedule is disabled (zero Interval, empty CronExpr) is skipped.
func (s *Scheduler) Register(key AgentKey, cfg SchedulerConfig) error {
	if err := s.registerOp(OpDecay, key, cfg.Decay, func(ctx context.Context) error {
		_, err := s.manager.RunDecay(ctx, key.UserID, key.AgentID)
		return err
	}); err != nil {
		return err
	}

	if err := s.registerOp(OpPromotion, key, cfg.Promotion, func(ctx context.Context) error {
		_, err := s.manager.RunPromotion(ctx, key.UserID, key.AgentID)
		return err
	}); err != nil {
		return err
	}

	if err := s.registerOp(OpCleanup, key, cfg.Cleanup, func(ctx context.Context) error {
		_, _, err := s.manager.RunCleanup(ctx, key.UserID, key.AgentID)
		return err
	}); err != nil {
		return err
	}

	return nil
}

// registerOp schedules a single operation's gocron job for one agent. A
// disabled schedule is a no-op, not an error, so that interval=0 cleanly
// turns an operation off per-agent.
func (s *Scheduler) registerOp(op Operation, key AgentKey, sched OperationSchedule, fn func(context.Context) error) error {
	if !sched.enabled() {
		return nil
	}

	definition, err := jobDefinition(sched)
	if err != nil {
		return fmt.Errorf("failed to schedule %s job for %s/%s: %w", op, key.UserID, key.AgentID, err)
	}

	runKey := RunKey{Op: op, UserID: key.UserID, AgentID: key.AgentID}

	job, err := s.scheduler.NewJob(
		definition,
		gocron.NewTask(func() {
			s.trigger(context.Background(), runKey, sched, fn)
		}),
		gocron.WithTags(string(op), key.UserID, key.AgentID),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s job for %s/%s: %w", op, key.UserID, key.AgentID, err)
	}

	s.mu.Lock()
	s.jobs[runKey] = job
	s.mu.Unlock()

	return nil
}

// Unregister removes a previously registered agent's decay, promotion, and
// cleanup jobs.
func (s *Scheduler) Unregister(key AgentKey) error {
	for _, op := range []Operation{OpDecay, OpPromotion, OpCleanup} {
		runKey := RunKey{Op: op, UserID: key.UserID, AgentID: key.AgentID}

		s.mu.Lock()
		job, ok := s.jobs[runKey]
		delete(s.jobs, runKey)
		s.mu.Unlock()

		if !ok {
			continue
		}
		if err := s.scheduler.RemoveJob(job.ID()); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting lifecycle scheduler")
	s.scheduler.Start()
}

// Shutdown cancels all timers and waits for in-flight runs to finish
// (cooperative join, spec §4.7).
func (s *Scheduler) Shutdown() error {
	s.logger.Info("shutting down lifecycle scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		return err
	}
	for i := 0; i < cap(s.sem); i++ {
		s.sem <- struct{}{}
	}
	return nil
}

// jobDefinition picks a gocron schedule from sched: an absolute cron
// expression if configured, validated with robfig/cron's standard parser
// before gocron ever sees it (gocron accepts a malformed crontab silently
// at run time otherwise), else the plain interval.
func jobDefinition(sched OperationSchedule) (gocron.JobDefinition, error) {
	if sched.CronExpr != "" {
		if _, err := cron.ParseStandard(sched.CronExpr); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
		}
		return gocron.CronJob(sched.CronExpr, false), nil
	}

	interval := sched.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return gocron.DurationJob(interval), nil
}

func (s *Scheduler) trigger(ctx context.Context, key RunKey, sched OperationSchedule, fn func(context.Context) error) {
	s.mu.Lock()
	if s.running[key] {
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{"op": key.Op, "userId": key.UserID, "agentId": key.AgentID}).
			Warn("lifecycle run already in flight, skipping reentry")
		return
	}
	s.running[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, key)
		s.mu.Unlock()
	}()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	maxRetries := sched.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	backoff := sched.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"op":      key.Op,
				"userId":  key.UserID,
				"agentId": key.AgentID,
			}).Info("lifecycle run complete")
			return
		}
		lastErr = err

		s.logger.WithFields(logrus.Fields{
			"op":      key.Op,
			"userId":  key.UserID,
			"agentId": key.AgentID,
			"attempt": attempt,
		}).WithError(lastErr).Warn("lifecycle run failed, will retry if attempts remain")

		if attempt < maxRetries {
			time.Sleep(backoff * time.Duration(attempt))
		}
	}

	s.logger.WithFields(logrus.Fields{"op": key.Op, "userId": key.UserID, "agentId": key.AgentID}).
		WithError(lastErr).Error("lifecycle run exhausted retries, giving up for this cycle")
}
