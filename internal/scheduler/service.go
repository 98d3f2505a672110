package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwizi/notify-bridge/internal/heartbeat"
)

const (
	defaultFailureBackoffMin = 1 * time.Minute
	defaultFailureBackoffMax = 30 * time.Minute
)

// ErrBackoff is returned by RunNow while a failed job waits for its retry time.
var ErrBackoff = errors.New("job is backing off after failure")

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Job struct {
	Name       string
	Spec       string
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type Recorder interface {
	ObserveJob(job string, err error)
}

type Config struct {
	Location          *time.Location
	FailureBackoffMin time.Duration
	FailureBackoffMax time.Duration
}

type jobState struct {
	job      Job
	mu       sync.Mutex
	failures int
	retryAt  time.Time
}

// Service runs named jobs on cron schedules. A failing job does not stop the
// others; it is retried after an exponential delay instead of at its next tick.
type Service struct {
	cron       *cron.Cron
	jobs       map[string]*jobState
	order      []string
	backoffMin time.Duration
	backoffMax time.Duration
	recorder   Recorder
	reporter   heartbeat.Reporter
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	runCtx context.Context
}

func New(cfg Config, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	backoffMin := cfg.FailureBackoffMin
	if backoffMin <= 0 {
		backoffMin = defaultFailureBackoffMin
	}
	backoffMax := cfg.FailureBackoffMax
	if backoffMax < backoffMin {
		backoffMax = defaultFailureBackoffMax
		if backoffMax < backoffMin {
			backoffMax = backoffMin
		}
	}
	adapter := cronLogger{logger: logger}
	return &Service{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(location),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		jobs:       map[string]*jobState{},
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		recorder:   recorder,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		runCtx:     context.Background(),
	}
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

func (s *Service) Name() string {
	return "scheduler"
}

// Add registers a job. It must be called before Start.
func (s *Service) Add(job Job) error {
	job.Name = strings.TrimSpace(job.Name)
	job.Spec = strings.Join(strings.Fields(job.Spec), " ")
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job name and run func are required")
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	state := &jobState{job: job}
	if _, err := s.cron.AddJob(job.Spec, cron.FuncJob(func() {
		_ = s.runJob(s.runContext(), state)
	})); err != nil {
		return fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	s.jobs[job.Name] = state
	s.order = append(s.order, job.Name)
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.report(func(r heartbeat.Reporter) { r.Disabled(s.Name(), "no jobs configured") })
		s.logger.Info("scheduler disabled, no jobs configured")
		<-ctx.Done()
		return nil
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.report(func(r heartbeat.Reporter) { r.Starting(s.Name(), "started") })
	for _, name := range s.order {
		state := s.jobs[name]
		if state.job.RunOnStart {
			_ = s.runJob(ctx, state)
		}
	}
	s.cron.Start()
	s.report(func(r heartbeat.Reporter) { r.Beat(s.Name(), "jobs scheduled") })
	s.logger.Info("scheduler started", "jobs", strings.Join(s.order, ","))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.report(func(r heartbeat.Reporter) { r.Stopped(s.Name(), "stopped") })
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow runs a job immediately, honouring its failure backoff.
func (s *Service) RunNow(ctx context.Context, name string) error {
	state, ok := s.jobs[strings.TrimSpace(name)]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(ctx, state)
}

func (s *Service) runJob(ctx context.Context, state *jobState) (err error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	name := state.job.Name
	now := s.now()
	if now.Before(state.retryAt) {
		s.logger.Debug("scheduled job skipped, backing off", "job", name, "retry_at", state.retryAt.Format(time.RFC3339))
		return ErrBackoff
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job %s panicked: %v", name, recovered)
		}
		s.finishJob(state, now, err)
	}()
	return state.job.Run(ctx)
}

func (s *Service) finishJob(state *jobState, startedAt time.Time, err error) {
	name := state.job.Name
	if s.recorder != nil {
		s.recorder.ObserveJob(name, err)
	}
	component := "job:" + name
	if err != nil {
		state.failures++
		delay := failureBackoff(state.failures, s.backoffMin, s.backoffMax)
		state.retryAt = startedAt.Add(delay)
		s.logger.Error("scheduled job failed", "job", name, "error", err,
			"consecutive_failures", state.failures, "retry_in", delay.String())
		s.report(func(r heartbeat.Reporter) { r.Degrade(component, "job failed", err) })
		return
	}
	if state.failures > 0 {
		s.logger.Info("scheduled job recovered", "job", name, "after_failures", state.failures)
	}
	state.failures = 0
	state.retryAt = time.Time{}
	s.report(func(r heartbeat.Reporter) { r.Beat(component, "job completed") })
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

func (s *Service) report(fn func(heartbeat.Reporter)) {
	if s.reporter != nil {
		fn(s.reporter)
	}
}

// failureBackoff doubles from floor per consecutive failure and caps at ceiling.
func failureBackoff(consecutive int, floor, ceiling time.Duration) time.Duration {
	backoff := floor
	for index := 1; index < consecutive; index++ {
		backoff *= 2
		if backoff >= ceiling {
			return ceiling
		}
	}
	return backoff
}

// cronLogger routes the cron library's own logging into slog. Its chatty info
// output goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
