package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"QuantPulse/internal/domain/repository"
	applogger "QuantPulse/pkg/logger"
)

var (
	ErrDuplicateJob   = errors.New("scheduler: job already registered")
	ErrJobNotFound    = errors.New("scheduler: job not found")
	ErrOverlapSkipped = errors.New("scheduler: previous run still in progress")
	ErrAlreadyRunning = errors.New("scheduler: already started")
)

// JobFunc is a job body. It must respect ctx cancellation; returning an
// error marks the fire failed but never stops the schedule.
type JobFunc func(ctx context.Context) error

// FireLock is an optional cross-process lock so only one instance fires
// a given job. Satisfied by the redis cache service.
type FireLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// JobStatus is a read-only view of one registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	LastRun  time.Time `json:"last_run,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	RunCount int       `json:"run_count"`
}

type job struct {
	name    string
	trigger Trigger
	fn      JobFunc

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	nextRun  time.Time
	lastErr  error
	runCount int
}

// Scheduler owns the registry of periodic jobs and their timing loops.
// At most one run of a job is in flight at any time; a fire that lands
// while the previous run is still going is skipped, never queued.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	clk     clock.Clock
	log     *applogger.Logger
	metrics repository.Metrics
	lock    FireLock
	lockTTL time.Duration

	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	fires   sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithClock injects the time base. Tests pass a fake clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clk = clk }
}

// WithFireLock enables the cross-process fire lock with the given TTL.
func WithFireLock(lock FireLock, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.lock = lock
		s.lockTTL = ttl
	}
}

// WithMetrics injects the metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a scheduler. The logger is required; clock defaults to
// the real one.
func New(log *applogger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs: make(map[string]*job),
		clk:  clock.New(),
		log:  log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a named job. Registering the same name twice is a
// configuration bug and fails with ErrDuplicateJob. Jobs must be
// registered before Start.
func (s *Scheduler) Register(name string, trigger Trigger, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if trigger == nil || fn == nil {
		return fmt.Errorf("scheduler: job %q needs a trigger and a body", name)
	}
	if it, ok := trigger.(IntervalTrigger); ok && it.Every <= 0 {
		return fmt.Errorf("scheduler: job %q interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	s.jobs[name] = &job{name: name, trigger: trigger, fn: fn}
	s.order = append(s.order, name)
	return nil
}

// Start launches one timing loop per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	jobs := make([]*job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	for _, j := range jobs {
		s.loops.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", applogger.Int("jobs", len(jobs)))
	return nil
}

// Shutdown stops the timing loops. With graceful=true it also waits for
// in-flight job bodies to finish.
func (s *Scheduler) Shutdown(graceful bool) {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.loops.Wait()
	if graceful {
		s.fires.Wait()
	}
	s.log.Info("scheduler stopped", applogger.Bool("graceful", graceful))
}

// RunJob fires a job by name outside its schedule. The overlap rule
// still applies: if a run is in flight it returns ErrOverlapSkipped.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !s.fire(ctx, j) {
		return fmt.Errorf("%w: %s", ErrOverlapSkipped, name)
	}
	return nil
}

// Jobs reports the status of every registered job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		j.mu.Lock()
		st := JobStatus{
			Name:     j.name,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  j.nextRun,
			RunCount: j.runCount,
		}
		if j.lastErr != nil {
			st.LastErr = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.loops.Done()
	for {
		now := s.clk.Now()
		next := j.trigger.Next(now)
		j.mu.Lock()
		j.nextRun = next
		j.mu.Unlock()

		timer := s.clk.Timer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.fire(ctx, j) {
			s.log.Info("job fire skipped, previous run in progress",
				applogger.String("job", j.name))
			if s.metrics != nil {
				s.metrics.RecordJobRun(j.name, "skipped_overlap")
			}
		}
	}
}

// fire starts one run of j unless one is already in flight. It reports
// whether the run was started.
func (s *Scheduler) fire(ctx context.Context, j *job) bool {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return false
	}
	j.running = true
	j.mu.Unlock()

	s.fires.Add(1)
	go s.run(ctx, j)
	return true
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.fires.Done()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	if s.lock != nil {
		key := "sched:lock:" + j.name
		ok, err := s.lock.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			// lock store unreachable: run anyway, a missed schedule is
			// worse than a rare double fire
			s.log.Warn("fire lock unavailable",
				applogger.String("job", j.name), applogger.Error(err))
		} else if !ok {
			s.log.Info("job fire held by another instance",
				applogger.String("job", j.name))
			if s.metrics != nil {
				s.metrics.RecordJobRun(j.name, "skipped_lock")
			}
			return
		} else {
			defer func() {
				if err := s.lock.Unlock(context.WithoutCancel(ctx), key); err != nil {
					s.log.Warn("fire lock release failed",
						applogger.String("job", j.name), applogger.Error(err))
				}
			}()
		}
	}

	started := s.clk.Now()
	s.log.Info("job started", applogger.String("job", j.name))

	err := s.safeCall(ctx, j)

	elapsed := s.clk.Now().Sub(started)
	j.mu.Lock()
	j.lastRun = started
	j.lastErr = err
	j.runCount++
	j.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.log.Error("job failed",
			applogger.String("job", j.name),
			applogger.Duration("elapsed", elapsed),
			applogger.Error(err))
	} else {
		s.log.Info("job finished",
			applogger.String("job", j.name),
			applogger.Duration("elapsed", elapsed))
	}
	if s.metrics != nil {
		s.metrics.RecordJobRun(j.name, outcome)
		s.metrics.RecordLatency("job_"+j.name, elapsed.Seconds())
	}
}

// safeCall runs the body and converts panics into errors so one bad
// fire never takes the loop down.
func (s *Scheduler) safeCall(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}
