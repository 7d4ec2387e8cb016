// Package schedule runs periodic jobs on cron triggers. Each job is a function
// of the current time so it can also be run on demand.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
)

// RunFunc executes one job run for the given instant.
type RunFunc func(ctx context.Context, now time.Time) error

// Scheduler owns the cron engine and the tasks registered on it.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	clock    func() time.Time
	metrics  *metrics.Metrics
	logger   *logrus.Entry

	mu      sync.RWMutex
	baseCtx context.Context
	cancel  context.CancelFunc
	tasks   []*Task
}

// Option customizes the Scheduler.
type Option func(*Scheduler)

// WithMetrics records job runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock overrides the time source passed to runs.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Scheduler evaluating cron specs in loc. Panicking runs are
// recovered and a run still in progress causes the next trigger to be skipped.
func New(loc *time.Location, logger *logrus.Entry, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		location: loc,
		clock:    time.Now,
		logger:   logging.Component(logger, "schedule"),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	cronLogger := logging.NewCronLogger(logger)
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	return s
}

// Add registers run under name on the standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, run RunFunc) (*Task, error) {
	if s == nil || s.cron == nil {
		return nil, errors.New("scheduler is not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("task name is required")
	}
	if run == nil {
		return nil, errors.New("task run function is required")
	}

	task := &Task{name: name, spec: spec, run: run, scheduler: s}
	id, err := s.cron.AddJob(spec, task)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	task.id = id

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	s.logger.WithFields(logging.Fields{
		"event": "task_scheduled",
		"task":  name,
		"spec":  spec,
	}).Info("scheduled task")

	return task, nil
}

// Start begins firing triggers. Runs receive a context derived from ctx that
// is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()

	for _, task := range s.Tasks() {
		s.logger.WithFields(logging.Fields{
			"event":    "task_next_run",
			"task":     task.Name(),
			"next_run": task.Next(),
		}).Info("task armed")
	}
}

// Stop prevents new triggers, cancels running jobs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running tasks: %w", ctx.Err())
	}
}

// Tasks returns the registered tasks in registration order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Task(nil), s.tasks...)
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.baseCtx
}

// Task is a handle to one scheduled job.
type Task struct {
	name      string
	spec      string
	id        cron.EntryID
	run       RunFunc
	scheduler *Scheduler
}

// Name returns the task name used in logs and metrics.
func (t *Task) Name() string {
	return t.name
}

// Next returns the next trigger time, or the zero time before Start.
func (t *Task) Next() time.Time {
	return t.scheduler.cron.Entry(t.id).Next
}

// Run implements cron.Job.
func (t *Task) Run() {
	_ = t.execute(t.scheduler.runContext(), "cron")
}

// RunNow executes the task once, outside its trigger, and returns its error.
func (t *Task) RunNow(ctx context.Context) error {
	if t == nil || t.scheduler == nil {
		return errors.New("task is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return t.execute(ctx, "manual")
}

func (t *Task) execute(ctx context.Context, trigger string) error {
	s := t.scheduler
	runID := uuid.NewString()
	now := s.clock().In(s.location)
	logger := s.logger.WithFields(logging.Fields{
		"task":    t.name,
		"run_id":  runID,
		"trigger": trigger,
	})

	logger.WithField("event", "task_started").Debug("task run started")

	started := time.Now()
	err := t.invoke(ctx, now)
	elapsed := time.Since(started)

	fields := logging.Fields{
		"event":       "task_finished",
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		s.metrics.ObserveJob(t.name, metrics.ResultFailure, elapsed)
		logger.WithFields(fields).WithError(err).Error("task run failed")
		return err
	}

	s.metrics.ObserveJob(t.name, metrics.ResultSuccess, elapsed)
	logger.WithFields(fields).Info("task run finished")
	return nil
}

// invoke turns a panic in the run into an error, so manual runs fail the same
// way cron-triggered ones do.
func (t *Task) invoke(ctx context.Context, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()

	return t.run(ctx, now)
}
