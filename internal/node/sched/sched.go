// Package sched runs the node's long-lived tasks cooperatively.
//
// Every task is a goroutine, but task code only executes while holding the
// scheduler's single run token. A task gives the token up at explicit
// suspension points (Yield, Sleep and Await), so at most one task touches
// shared node state at a time and a long job cannot starve the others as
// long as it keeps reaching suspension points.
package sched

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
)

// Yielder is the set of suspension points offered to task code.
type Yielder interface {
	// Yield lets every other runnable task run before returning.
	Yield(ctx context.Context) error

	// Sleep suspends the caller for d without holding the run token.
	Sleep(ctx context.Context, d time.Duration) error

	// Await runs a blocking operation with the run token released.
	Await(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Yielder = (*Scheduler)(nil)

// Task is a named unit of work. Run is expected to loop until ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures a Scheduler.
type Options struct {
	// Clock drives Sleep and restart delays. Defaults to the real clock.
	Clock clock.Clock

	// RestartDelay is the pause before a failed task is started again.
	RestartDelay time.Duration

	Logger logr.Logger
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	// Tasks is the number of tasks currently started.
	Tasks int
	// Parked is the number of tasks suspended in Sleep or Await.
	Parked int
}

// Scheduler multiplexes tasks over one run token.
type Scheduler struct {
	token        *semaphore.Weighted
	clock        clock.Clock
	restartDelay time.Duration
	log          logr.Logger

	tasks  atomic.Int32
	parked atomic.Int32

	mu      sync.Mutex
	pending []Task
	group   *errgroup.Group
	ctx     context.Context
}

// New creates a Scheduler. Tasks are added with Go and started by Run.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	return &Scheduler{
		token:        semaphore.NewWeighted(1),
		clock:        opts.Clock,
		restartDelay: opts.RestartDelay,
		log:          opts.Logger,
	}
}

// Clock returns the clock driving Sleep, for timestamps that must agree with it.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Go registers a supervised task. Tasks added after Run started begin immediately.
func (s *Scheduler) Go(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group == nil {
		s.pending = append(s.pending, t)
		return
	}
	ctx := s.ctx
	s.group.Go(func() error {
		s.supervise(ctx, t)
		return nil
	})
}

// Spawn runs fn once as a task. It reports false when the scheduler is not running.
func (s *Scheduler) Spawn(name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group == nil || s.ctx.Err() != nil {
		return false
	}
	ctx := s.ctx
	s.group.Go(func() error {
		s.tasks.Add(1)
		defer s.tasks.Add(-1)

		if err := s.runOnce(ctx, Task{Name: name, Run: fn}); err != nil && ctx.Err() == nil {
			s.log.Error(err, "One-shot task failed", "task", name)
		}
		return nil
	})
	return true
}

// Run starts every registered task and blocks until ctx is cancelled and all
// tasks have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	if s.group != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.group, s.ctx = g, gctx
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, t := range pending {
		g.Go(func() error {
			s.supervise(gctx, t)
			return nil
		})
	}

	s.log.Info("Scheduler started", "tasks", len(pending))
	err := g.Wait()
	s.log.Info("Scheduler stopped")
	return err
}

// Stats returns the current task and parked counts.
func (s *Scheduler) Stats() Stats {
	return Stats{Tasks: int(s.tasks.Load()), Parked: int(s.parked.Load())}
}

// supervise keeps t running until ctx is done. Returns and panics are logged
// and followed by a restart.
func (s *Scheduler) supervise(ctx context.Context, t Task) {
	for {
		s.tasks.Add(1)
		err := s.runOnce(ctx, t)
		s.tasks.Add(-1)

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			s.log.Error(err, "Task failed, restarting", "task", t.Name, "delay", s.restartDelay)
		} else {
			s.log.Info("Task returned, restarting", "task", t.Name, "delay", s.restartDelay)
		}
		metrics.TaskRestartsTotal.WithLabelValues(t.Name).Inc()

		if err := s.wait(ctx, s.restartDelay); err != nil {
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) (err error) {
	st := &taskState{name: t.Name}
	tctx := context.WithValue(ctx, taskKey{}, st)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.Name, r)
		}
		if st.held {
			s.release(st)
		}
	}()

	if err := s.acquire(tctx, st); err != nil {
		return err
	}
	return t.Run(tctx)
}

func (s *Scheduler) Yield(ctx context.Context) error {
	st := stateFrom(ctx)
	if st == nil || !st.held {
		return ctx.Err()
	}
	s.release(st)
	return s.acquire(ctx, st)
}

func (s *Scheduler) Sleep(ctx context.Context, d time.Duration) error {
	st := stateFrom(ctx)
	if st == nil || !st.held {
		return s.wait(ctx, d)
	}
	if d <= 0 {
		return s.Yield(ctx)
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	s.release(st)
	s.parked.Add(1)
	select {
	case <-timer.C():
		s.parked.Add(-1)
	case <-ctx.Done():
		s.parked.Add(-1)
		return ctx.Err()
	}
	return s.acquire(ctx, st)
}

// Await releases the token, runs fn and takes the token back. fn receives a
// context outside any task, so suspension points inside it do not touch the token.
func (s *Scheduler) Await(ctx context.Context, fn func(ctx context.Context) error) error {
	st := stateFrom(ctx)
	if st == nil || !st.held {
		return fn(ctx)
	}

	s.release(st)
	err := func() error {
		s.parked.Add(1)
		defer s.parked.Add(-1)
		return fn(context.WithValue(ctx, taskKey{}, (*taskState)(nil)))
	}()

	if aerr := s.acquire(ctx, st); aerr != nil {
		return aerr
	}
	return err
}

// wait is a plain clock wait that holds no token.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) acquire(ctx context.Context, st *taskState) error {
	if err := s.token.Acquire(ctx, 1); err != nil {
		return err
	}
	st.held = true
	return nil
}

func (s *Scheduler) release(st *taskState) {
	st.held = false
	s.token.Release(1)
}

// taskState belongs to the goroutine running the task.
type taskState struct {
	name string
	held bool
}

type taskKey struct{}

func stateFrom(ctx context.Context) *taskState {
	st, _ := ctx.Value(taskKey{}).(*taskState)
	return st
}

// TaskName returns the name of the task ctx belongs to, or "".
func TaskName(ctx context.Context) string {
	if st := stateFrom(ctx); st != nil {
		return st.name
	}
	return ""
}
