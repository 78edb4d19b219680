package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/emergent-company/graphmerge/pkg/logger"
)

// taskTimeout caps a single task run.
const taskTimeout = 30 * time.Minute

// TaskFunc is the function signature for scheduled tasks
type TaskFunc func(ctx context.Context) error

// Scheduler runs recurring tasks on robfig/cron. Tasks are keyed by name;
// adding a task under an existing name replaces it.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	tasks   map[string]cron.EntryID
	pending map[string]*time.Timer
	mu      sync.RWMutex
	running bool
}

// NewScheduler creates a scheduler with seconds precision
func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log.With(logger.Scope("scheduler")),
		tasks:   make(map[string]cron.EntryID),
		pending: make(map[string]*time.Timer),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started",
		slog.Int("tasks", len(s.tasks)),
		slog.Int("pending", len(s.pending)))

	return nil
}

// Stop cancels pending delayed tasks and waits for running ones until ctx
// expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range s.pending {
		t.Stop()
		delete(s.pending, name)
	}

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
	}

	s.running = false
	return nil
}

// AddCronTask adds a task with a cron expression
// Cron format: "second minute hour day-of-month month day-of-week"
func (s *Scheduler) AddCronTask(name string, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}

	s.tasks[name] = entryID
	s.log.Info("added cron task",
		slog.String("name", name),
		slog.String("schedule", schedule))

	return nil
}

// AddIntervalTask adds a task that runs at a fixed interval
func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addIntervalLocked(name, interval, task)
}

func (s *Scheduler) addIntervalLocked(name string, interval time.Duration, task TaskFunc) error {
	s.removeLocked(name)

	entryID, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}

	s.tasks[name] = entryID
	s.log.Info("added interval task",
		slog.String("name", name),
		slog.Duration("interval", interval))

	return nil
}

// AddDelayedIntervalTask runs task once after delay and then at every
// interval. A non-positive delay behaves like AddIntervalTask.
func (s *Scheduler) AddDelayedIntervalTask(name string, delay, interval time.Duration, task TaskFunc) error {
	if delay <= 0 {
		return s.AddIntervalTask(name, interval, task)
	}
	// Validate the interval now so the delayed registration cannot fail.
	if _, err := cron.ParseStandard("@every " + interval.String()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending[name] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.pending, name)
		err := s.addIntervalLocked(name, interval, task)
		s.mu.Unlock()
		if err != nil {
			s.log.Error("failed to schedule delayed task",
				slog.String("name", name),
				logger.Error(err))
			return
		}
		s.runTask(name, task)
	})
	s.pending[name] = timer

	s.log.Info("added delayed interval task",
		slog.String("name", name),
		slog.Duration("delay", delay),
		slog.Duration("interval", interval))
	return nil
}

// RemoveTask removes a scheduled or pending task
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removeLocked(name) {
		s.log.Info("removed task", slog.String("name", name))
	}
}

func (s *Scheduler) removeLocked(name string) bool {
	removed := false
	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		removed = true
	}
	if t, ok := s.pending[name]; ok {
		t.Stop()
		delete(s.pending, name)
		removed = true
	}
	return removed
}

// runTask executes a task with error handling
func (s *Scheduler) runTask(name string, task TaskFunc) {
	startTime := time.Now()
	s.log.Debug("running scheduled task", slog.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if err := task(ctx); err != nil {
		s.log.Error("scheduled task failed",
			slog.String("name", name),
			logger.Error(err),
			slog.Duration("duration", time.Since(startTime)))
		return
	}

	s.log.Debug("scheduled task completed",
		slog.String("name", name),
		slog.Duration("duration", time.Since(startTime)))
}

// ListTasks returns the names of all scheduled and pending tasks, sorted
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks)+len(s.pending))
	for name := range s.tasks {
		names = append(names, name)
	}
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskInfo represents information about a scheduled task
type TaskInfo struct {
	Name     string    `json:"name"`
	NextRun  time.Time `json:"next_run"`
	PrevRun  time.Time `json:"prev_run,omitempty"`
	Schedule string    `json:"schedule"`
}

// GetTaskInfo returns information about the tasks registered with cron
func (s *Scheduler) GetTaskInfo() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info []TaskInfo
	entries := s.cron.Entries()

	for name, entryID := range s.tasks {
		for _, entry := range entries {
			if entry.ID == entryID {
				info = append(info, TaskInfo{
					Name:     name,
					NextRun:  entry.Next,
					PrevRun:  entry.Prev,
					Schedule: entry.Schedule.Next(time.Now()).String(),
				})
				break
			}
		}
	}

	return info
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
