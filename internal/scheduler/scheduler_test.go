package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcache "QuantPulse/pkg/cache"
	applogger "QuantPulse/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

type fakeMetrics struct {
	mu      sync.Mutex
	jobRuns map[string]int // "job/outcome" -> count
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{jobRuns: make(map[string]int)}
}

func (m *fakeMetrics) RecordJobRun(job, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobRuns[job+"/"+outcome]++
}

func (m *fakeMetrics) count(job, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobRuns[job+"/"+outcome]
}

func (m *fakeMetrics) RecordCandlesStored(string, int) {}
func (m *fakeMetrics) RecordOrder(string, string)      {}
func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordScore(string, float64)     {}
func (m *fakeMetrics) RecordTradingEnabled(bool)       {}
func (m *fakeMetrics) RecordLatency(string, float64)   {}
func (m *fakeMetrics) RecordError(string)              {}

func waitRecv(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	s := New(testLogger(t))
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register("ingest", IntervalTrigger{Every: time.Second}, noop))
	err := s.Register("ingest", IntervalTrigger{Every: time.Second}, noop)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestRegisterValidation(t *testing.T) {
	s := New(testLogger(t))
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.Register("", IntervalTrigger{Every: time.Second}, noop))
	assert.Error(t, s.Register("bad", IntervalTrigger{Every: 0}, noop))
	assert.Error(t, s.Register("bad", nil, noop))
	assert.Error(t, s.Register("bad", IntervalTrigger{Every: time.Second}, nil))
}

func TestScheduledFire(t *testing.T) {
	mock := clock.NewMock()
	s := New(testLogger(t), WithClock(mock))

	ran := make(chan struct{}, 10)
	require.NoError(t, s.Register("tick", IntervalTrigger{Every: time.Second}, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	time.Sleep(20 * time.Millisecond) // let the loop arm its timer
	mock.Add(time.Second)
	waitRecv(t, ran, "job did not fire after one interval")

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitRecv(t, ran, "job did not fire after second interval")
}

func TestOverlapSkipsNeverQueues(t *testing.T) {
	mock := clock.NewMock()
	metrics := newFakeMetrics()
	s := New(testLogger(t), WithClock(mock), WithMetrics(metrics))

	started := make(chan struct{}, 10)
	release := make(chan struct{})
	require.NoError(t, s.Register("slow", IntervalTrigger{Every: time.Second}, func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitRecv(t, started, "first run did not start")

	// Two more ticks land while the first run is still in flight.
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	time.Sleep(50 * time.Millisecond)

	select {
	case <-started:
		t.Fatal("overlapping run started while previous was in flight")
	default:
	}
	assert.GreaterOrEqual(t, metrics.count("slow", "skipped_overlap"), 2)

	// After release the next tick runs again; skipped fires were dropped,
	// not queued.
	close(release)
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitRecv(t, started, "job did not resume after release")

	s.Shutdown(true)
}

func TestRunJobManualFire(t *testing.T) {
	s := New(testLogger(t))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, s.Register("scan", CronTrigger{Second: 10, Minute: -1}, func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}))

	assert.ErrorIs(t, s.RunJob(context.Background(), "missing"), ErrJobNotFound)

	require.NoError(t, s.RunJob(context.Background(), "scan"))
	waitRecv(t, started, "manual fire did not start")

	// Overlap rule applies to manual fires too.
	assert.ErrorIs(t, s.RunJob(context.Background(), "scan"), ErrOverlapSkipped)
	close(release)
}

func TestJobErrorCapturedLoopSurvives(t *testing.T) {
	mock := clock.NewMock()
	metrics := newFakeMetrics()
	s := New(testLogger(t), WithClock(mock), WithMetrics(metrics))

	boom := errors.New("fetch failed")
	ran := make(chan struct{}, 10)
	require.NoError(t, s.Register("flaky", IntervalTrigger{Every: time.Second}, func(ctx context.Context) error {
		ran <- struct{}{}
		return boom
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitRecv(t, ran, "first fire missing")
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitRecv(t, ran, "loop died after job error")

	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, metrics.count("flaky", "error"), 1)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "flaky", jobs[0].Name)
	assert.Contains(t, jobs[0].LastErr, "fetch failed")
}

func TestFireLockHeldSkipsRun(t *testing.T) {
	lock := pkgcache.NewMemoryCache()
	metrics := newFakeMetrics()
	s := New(testLogger(t), WithMetrics(metrics), WithFireLock(lock, time.Minute))

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register("ingest", IntervalTrigger{Every: time.Second}, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	// another instance holds the fire lock
	held, err := lock.TryLock(context.Background(), "sched:lock:ingest", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, s.RunJob(context.Background(), "ingest"))
	time.Sleep(50 * time.Millisecond)
	select {
	case <-ran:
		t.Fatal("job ran while the fire lock was held elsewhere")
	default:
	}
	assert.Equal(t, 1, metrics.count("ingest", "skipped_lock"))

	require.NoError(t, lock.Unlock(context.Background(), "sched:lock:ingest"))
	require.NoError(t, s.RunJob(context.Background(), "ingest"))
	waitRecv(t, ran, "job did not run after the lock was released")
	s.Shutdown(true)
}

func TestPanicInJobBodyIsContained(t *testing.T) {
	s := New(testLogger(t))

	require.NoError(t, s.Register("panicky", IntervalTrigger{Every: time.Second}, func(ctx context.Context) error {
		panic("bad index")
	}))

	require.NoError(t, s.RunJob(context.Background(), "panicky"))
	s.Shutdown(true)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].LastErr, "panicked")
}
