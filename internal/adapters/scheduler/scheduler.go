// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/dropwatch/pkg/logger"
)

// ErrStopTimeout is returned by Stop when running jobs outlive the context.
var ErrStopTimeout = errors.New("scheduler stop timed out")

// Job is one unit of periodic work. The context is canceled on Stop.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with named, logged jobs.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    logger.Logger

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	running bool
}

// Option applies a configuration option to the Scheduler.
type Option func(*options)

type options struct {
	log      logger.Logger
	location *time.Location
}

// WithLogger sets the logger for job outcomes and cron internals.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLocation sets the time zone specs are evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	o := options{log: logger.Nop(), location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	cl := cronLogger{log: o.log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		log:    o.log,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add registers job under name on a standard five-field spec or a
// descriptor such as "@every 30s". Names are unique.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("add job %q: already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.log.Error(s.ctx, "scheduled job failed", logger.String("job", name), logger.Error(err))
			return
		}
		s.log.Debug(s.ctx, "scheduled job done", logger.String("job", name), logger.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("add job %q: %w", name, err)
	}
	s.jobs[name] = id
	return nil
}

// Start begins running jobs in the background. It is idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info(s.ctx, "scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling, cancels the job context and waits for running
// jobs to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
}

// Next reports when the named job fires next. ok is false for unknown
// names or before Start.
func (s *Scheduler) Next(name string) (next time.Time, ok bool) {
	s.mu.Lock()
	id, found := s.jobs[name]
	s.mu.Unlock()
	if !found {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if e.Next.IsZero() {
		return time.Time{}, false
	}
	return e.Next, true
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(context.Background(), "cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
