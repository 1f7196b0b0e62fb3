// Package scheduler runs a periodic job behind a start/stop control surface.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Job is the work the scheduler triggers on every tick.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// SchedulerService exposes a small control surface for the scheduler.
// Start/Stop are synchronous controls, and IsRunning reports
// whether the scheduler is currently accepting ticks.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// DefaultInterval is used when no custom interval is provided.
const DefaultInterval = time.Minute

// DefaultBatchTimeout bounds a single job run.
const DefaultBatchTimeout = 30 * time.Second

// controlTimeout is how long a caller waits for the control loop to
// accept a command.
const controlTimeout = 2 * time.Second

var (
	ErrNotResponding = errors.New("scheduler: control loop not responding")
	ErrAckTimeout    = errors.New("scheduler: acknowledgement timeout")
)

type controlOp int

const (
	opStart controlOp = iota
	opStop
	opStatus
)

// controlMsg is sent over the ctrl channel to drive the scheduler's state.
type controlMsg struct {
	op   controlOp
	resp chan bool
}

// schedulerService owns the internal state and runs the control loop.
// All mutable state lives in the loop goroutine, so no locks are needed.
type schedulerService struct {
	job          Job
	name         string
	interval     time.Duration
	batchTimeout time.Duration
	logger       *slog.Logger
	ctrl         chan controlMsg
}

// NewSchedulerService creates a scheduler for job. Non-positive interval
// or batch timeout fall back to the defaults. The scheduler starts idle.
func NewSchedulerService(
	name string,
	job Job,
	interval time.Duration,
	batchTimeout time.Duration,
	logger *slog.Logger,
) SchedulerService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	s := &schedulerService{
		job:          job,
		name:         name,
		interval:     interval,
		batchTimeout: batchTimeout,
		logger:       logger.With("component", "scheduler", "job", name),
		ctrl:         make(chan controlMsg),
	}

	go s.loop()

	return s
}

// Start tells the scheduler to begin processing ticks.
func (s *schedulerService) Start() error {
	return s.send(opStart, controlTimeout)
}

// Stop tells the scheduler to stop accepting new ticks. If a run is in
// progress, Stop waits for it to finish or time out.
func (s *schedulerService) Stop() error {
	return s.send(opStop, s.batchTimeout+controlTimeout)
}

// IsRunning reports whether new ticks will be processed. It does not mean
// a run is currently executing.
func (s *schedulerService) IsRunning() bool {
	resp := make(chan bool, 1)
	s.ctrl <- controlMsg{op: opStatus, resp: resp}
	return <-resp
}

func (s *schedulerService) send(op controlOp, ackTimeout time.Duration) error {
	resp := make(chan bool, 1)

	select {
	case s.ctrl <- controlMsg{op: op, resp: resp}:
	case <-time.After(controlTimeout):
		return ErrNotResponding
	}

	select {
	case <-resp:
		return nil
	case <-time.After(ackTimeout):
		return ErrAckTimeout
	}
}

// loop reacts to control messages, ticks and run completions. The job
// runs in its own goroutine so control commands are answered mid-run.
func (s *schedulerService) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	running := false
	var done chan error
	var pendingStops []chan bool

	for {
		select {
		case msg := <-s.ctrl:
			switch msg.op {
			case opStart:
				if !running {
					s.logger.Info("scheduler started",
						"interval", s.interval.String(), "batch_timeout", s.batchTimeout.String())
				}
				running = true
				msg.resp <- true

			case opStop:
				if running {
					s.logger.Info("scheduler stop requested")
				}
				running = false
				if done != nil {
					pendingStops = append(pendingStops, msg.resp)
				} else {
					msg.resp <- true
				}

			case opStatus:
				msg.resp <- running
			}

		case <-ticker.C:
			if !running || done != nil {
				continue
			}
			done = make(chan error, 1)
			go s.runOnce(done)

		case err := <-done:
			if err != nil {
				s.logger.Error("scheduled run failed", "error", err)
			} else {
				s.logger.Debug("scheduled run completed")
			}
			done = nil

			for _, resp := range pendingStops {
				resp <- true
			}
			if len(pendingStops) > 0 {
				s.logger.Info("scheduler stopped")
			}
			pendingStops = nil
		}
	}
}

func (s *schedulerService) runOnce(done chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.batchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "panic", r)
			done <- errors.New("scheduler: job panicked")
		}
	}()

	done <- s.job.Run(ctx)
}
