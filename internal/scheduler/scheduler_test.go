package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJob counts runs, signals when a run starts and can block until released.
type fakeJob struct {
	calls int32

	started chan struct{}
	mu      sync.Mutex
	block   chan struct{}
	err     error
}

func newFakeJob() *fakeJob {
	return &fakeJob{
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
}

func (f *fakeJob) Run(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)

	select {
	case f.started <- struct{}{}:
	default:
	}

	f.mu.Lock()
	block := f.block
	f.mu.Unlock()

	select {
	case <-block:
	case <-ctx.Done():
	}
	return f.err
}

func (f *fakeJob) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.block)
}

func (f *fakeJob) rearm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStarted(t *testing.T, job *fakeJob) {
	t.Helper()
	select {
	case <-job.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job was not triggered")
	}
}

func TestScheduler_IdleUntilStarted(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 5*time.Millisecond, time.Second, testLogger())

	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.IsRunning())
	assert.Zero(t, atomic.LoadInt32(&job.calls))
}

func TestScheduler_StartTriggersJob(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 10*time.Millisecond, 2*time.Second, testLogger())

	require.NoError(t, s.Start())
	defer func() {
		job.release()
		_ = s.Stop()
	}()

	waitStarted(t, job)
	assert.True(t, s.IsRunning())
}

func TestScheduler_StatusAnsweredDuringRun(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 5*time.Millisecond, 2*time.Second, testLogger())

	require.NoError(t, s.Start())
	waitStarted(t, job)

	answered := make(chan bool, 1)
	go func() { answered <- s.IsRunning() }()

	select {
	case running := <-answered:
		assert.True(t, running)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("IsRunning blocked while the job was running")
	}

	job.release()
	require.NoError(t, s.Stop())
}

func TestScheduler_StopWaitsForRunCompletion(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 5*time.Millisecond, 2*time.Second, testLogger())

	require.NoError(t, s.Start())
	waitStarted(t, job)

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	select {
	case <-done:
		t.Fatal("Stop returned before the run finished")
	case <-time.After(50 * time.Millisecond):
	}

	job.release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop did not return after the run finished")
	}
	assert.False(t, s.IsRunning())
}

func TestScheduler_StartStopStart(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 10*time.Millisecond, 2*time.Second, testLogger())

	require.NoError(t, s.Start())
	waitStarted(t, job)
	job.release()

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	job.rearm()
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	waitStarted(t, job)

	job.release()
	require.NoError(t, s.Stop())
}

func TestScheduler_FailedRunKeepsScheduling(t *testing.T) {
	var calls int32
	job := JobFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	s := NewSchedulerService("test", job, 5*time.Millisecond, time.Second, testLogger())

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunIsBoundedByBatchTimeout(t *testing.T) {
	job := newFakeJob()
	s := NewSchedulerService("test", job, 5*time.Millisecond, 30*time.Millisecond, testLogger())

	require.NoError(t, s.Start())
	waitStarted(t, job)

	// The job never gets released; its context deadline ends the run.
	require.NoError(t, s.Stop())
}

func TestScheduler_ConcurrentStartStop(t *testing.T) {
	job := JobFunc(func(context.Context) error { return nil })
	s := NewSchedulerService("test", job, 5*time.Millisecond, 50*time.Millisecond, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Start())
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
		}()
	}
	wg.Wait()
}
