package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/wagerline/internal/logging"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logging.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		tasks:  make([]*Task, 0),
		logger: logger.Component("scheduler"),
	}
}

// AddTask adds a task to the scheduler. Tasks added after Start begin
// running immediately.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task := &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	}
	s.tasks = append(s.tasks, task)

	if s.running {
		s.launch(s.runCtx, task)
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, task := range s.tasks {
		s.launch(s.runCtx, task)
	}

	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the scheduler has been started
func (s *Scheduler) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

func (s *Scheduler) launch(ctx context.Context, task *Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTask(ctx, task)
	}()
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.execute(ctx, task)

	for {
		select {
		case <-ticker.C:
			s.execute(ctx, task)
		case <-ctx.Done():
			s.logger.Debug("task stopped", "task", task.Name)
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task *Task) {
	if err := task.Fn(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("task failed", "task", task.Name, logging.Err(err))
	}
}
