// Package scheduler runs the notification job on a cron schedule and on
// demand, one run at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Job is one unit of scheduled work. manual is true for runs started by
// Trigger.
type Job func(ctx context.Context, manual bool) error

// State is the current state of the job loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	State     State
	Runs      int
	LastRun   time.Time
	LastError error
	// Next is the next cron activation, zero when periodic runs are off.
	Next time.Time
}

// Scheduler triggers a Job from a cron schedule or manually. Runs never
// overlap; manual triggers that arrive during a run coalesce into one
// follow-up run.
type Scheduler struct {
	schedule cron.Schedule
	loc      *time.Location
	job      Job
	logger   *slog.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	started bool
	status  Status
}

// New parses expr as a standard five-field cron expression evaluated in
// timezone. An empty expr disables periodic runs.
func New(expr, timezone string, job Job, logger *slog.Logger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
		}
	}

	var schedule cron.Schedule
	if expr != "" {
		var err error
		schedule, err = cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
		}
	}

	return newScheduler(schedule, loc, job, logger), nil
}

func newScheduler(schedule cron.Schedule, loc *time.Location, job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		schedule:  schedule,
		loc:       loc,
		job:       job,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the job loop. Jobs receive a context derived from ctx
// that is cancelled by Stop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.started {
		return nil
	}
	s.started = true

	go s.loop(ctx)
	return nil
}

// Trigger requests an immediate run. It never blocks and reports false
// when a run is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop cancels a running job and waits for the loop to exit. It is safe
// to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}

	s.mu.Lock()
	s.status.State = StateStopped
	s.status.Next = time.Time{}
	s.mu.Unlock()
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) loop(parent context.Context) {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		timer, next := s.nextTimer()
		s.setNext(next)

		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-fire:
			s.logger.Info("scheduled run", "at", next)
			s.run(ctx, false)
		case <-s.triggerCh:
			stopTimer(timer)
			s.logger.Info("manual run")
			s.run(ctx, true)
		}
	}
}

func (s *Scheduler) nextTimer() (*time.Timer, time.Time) {
	if s.schedule == nil {
		return nil, time.Time{}
	}
	now := time.Now().In(s.loc)
	next := s.schedule.Next(now)
	if next.IsZero() {
		return nil, time.Time{}
	}
	return time.NewTimer(next.Sub(now)), next
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Scheduler) setNext(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Next = next
}

func (s *Scheduler) run(ctx context.Context, manual bool) {
	s.mu.Lock()
	s.status.State = StateRunning
	s.mu.Unlock()

	start := time.Now()
	err := s.job(ctx, manual)

	s.mu.Lock()
	s.status.State = StateIdle
	s.status.Runs++
	s.status.LastRun = start
	s.status.LastError = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "err", err, "took", time.Since(start))
		return
	}
	s.logger.Info("job finished", "took", time.Since(start))
}
