package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emergent-company/graphmerge/domain/classify"
	"github.com/emergent-company/graphmerge/domain/replace"
	"github.com/emergent-company/graphmerge/domain/sweep"
	"github.com/emergent-company/graphmerge/internal/config"
)

func TestScheduler_IsRunning(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	// Initially should not be running
	if s.IsRunning() {
		t.Error("New scheduler should not be running")
	}

	// After Start, should be running
	// Note: We can't easily test Start/Stop without a context,
	// but we can test the internal running field
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if !s.IsRunning() {
		t.Error("Scheduler should be running after setting running=true")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.IsRunning() {
		t.Error("Scheduler should not be running after setting running=false")
	}
}

func TestScheduler_ListTasks(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	// Initially should have no tasks
	tasks := s.ListTasks()
	if len(tasks) != 0 {
		t.Errorf("New scheduler should have 0 tasks, got %d", len(tasks))
	}

	// Manually add a task entry
	s.mu.Lock()
	s.tasks["task1"] = 1
	s.tasks["task2"] = 2
	s.mu.Unlock()

	tasks = s.ListTasks()
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(tasks))
	}

	// Check that both tasks are present
	hasTask1, hasTask2 := false, false
	for _, name := range tasks {
		if name == "task1" {
			hasTask1 = true
		}
		if name == "task2" {
			hasTask2 = true
		}
	}

	if !hasTask1 {
		t.Error("Expected task1 in list")
	}
	if !hasTask2 {
		t.Error("Expected task2 in list")
	}
}

func TestScheduler_ListTasks_Empty(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	tasks := s.ListTasks()
	if tasks == nil {
		t.Error("ListTasks should return non-nil slice")
	}
	if len(tasks) != 0 {
		t.Errorf("ListTasks should return empty slice, got %d items", len(tasks))
	}
}

func TestNewScheduler(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	if s == nil {
		t.Fatal("NewScheduler returned nil")
	}
	if s.cron == nil {
		t.Error("Scheduler cron should not be nil")
	}
	if s.tasks == nil {
		t.Error("Scheduler tasks map should not be nil")
	}
	if s.pending == nil {
		t.Error("Scheduler pending map should not be nil")
	}
	if s.running {
		t.Error("New scheduler should not be running")
	}
}

func TestTaskInfo_Struct(t *testing.T) {
	// Test that TaskInfo struct has the expected fields
	info := TaskInfo{
		Name:     "test-task",
		Schedule: "@every 1h",
	}

	if info.Name != "test-task" {
		t.Errorf("Name = %q, want %q", info.Name, "test-task")
	}
	if info.Schedule != "@every 1h" {
		t.Errorf("Schedule = %q, want %q", info.Schedule, "@every 1h")
	}
	if !info.NextRun.IsZero() {
		t.Error("NextRun should be zero value")
	}
	if !info.PrevRun.IsZero() {
		t.Error("PrevRun should be zero value")
	}
}

func TestScheduler_GetTaskInfo_Empty(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	info := s.GetTaskInfo()
	// GetTaskInfo returns nil for empty scheduler (not an empty slice)
	if len(info) != 0 {
		t.Errorf("GetTaskInfo should return empty result, got %d items", len(info))
	}
}

func TestScheduler_GetTaskInfo_WithTasks(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	// Add a cron task - this adds an entry to both s.tasks and s.cron
	dummyTask := func(ctx context.Context) error {
		return nil
	}

	// Add task with a simple cron schedule
	err := s.AddCronTask("test-task", "@every 1h", dummyTask)
	if err != nil {
		t.Fatalf("Failed to add cron task: %v", err)
	}

	// Now GetTaskInfo should return the task info
	info := s.GetTaskInfo()
	if len(info) != 1 {
		t.Fatalf("GetTaskInfo should return 1 item, got %d", len(info))
	}

	if info[0].Name != "test-task" {
		t.Errorf("TaskInfo.Name = %q, want %q", info[0].Name, "test-task")
	}
	// Schedule should contain a valid time string
	if info[0].Schedule == "" {
		t.Error("TaskInfo.Schedule should not be empty")
	}
}

func TestScheduler_GetTaskInfo_MultipleTasks(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	// Add multiple tasks
	err := s.AddCronTask("task-a", "@every 30m", dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task-a: %v", err)
	}

	err = s.AddIntervalTask("task-b", 15*time.Minute, dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task-b: %v", err)
	}

	info := s.GetTaskInfo()
	if len(info) != 2 {
		t.Fatalf("GetTaskInfo should return 2 items, got %d", len(info))
	}

	// Check both tasks are present (order is not guaranteed due to map iteration)
	taskNames := make(map[string]bool)
	for _, ti := range info {
		taskNames[ti.Name] = true
	}

	if !taskNames["task-a"] {
		t.Error("Expected task-a in GetTaskInfo result")
	}
	if !taskNames["task-b"] {
		t.Error("Expected task-b in GetTaskInfo result")
	}
}

func TestScheduler_AddCronTask_ReplaceExisting(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	// Add a task
	err := s.AddCronTask("task1", "@every 1h", dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	// Verify task exists
	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}

	// Replace with a new task (same name)
	err = s.AddCronTask("task1", "@every 30m", dummyTask)
	if err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	// Should still have only 1 task (replaced)
	tasks = s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_AddIntervalTask_ReplaceExisting(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	// Add a task
	err := s.AddIntervalTask("task1", 1*time.Hour, dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	// Verify task exists
	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}

	// Replace with a new task (same name)
	err = s.AddIntervalTask("task1", 30*time.Minute, dummyTask)
	if err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	// Should still have only 1 task (replaced)
	tasks = s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_AddCronTask_InvalidSchedule(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	// Try to add task with invalid cron schedule
	err := s.AddCronTask("task1", "not a valid schedule", dummyTask)
	if err == nil {
		t.Error("Expected error for invalid schedule, got nil")
	}

	// Verify no task was added
	tasks := s.ListTasks()
	if len(tasks) != 0 {
		t.Errorf("Expected 0 tasks after failed add, got %d", len(tasks))
	}
}

func TestScheduler_AddDelayedIntervalTask_RunsAfterDelay(t *testing.T) {
	s := NewScheduler(slog.Default())

	ran := make(chan struct{}, 1)
	task := func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}

	if err := s.AddDelayedIntervalTask("delayed", 10*time.Millisecond, time.Hour, task); err != nil {
		t.Fatalf("Failed to add delayed task: %v", err)
	}
	if tasks := s.ListTasks(); len(tasks) != 1 || tasks[0] != "delayed" {
		t.Fatalf("Expected pending task in list, got %v", tasks)
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task did not run")
	}

	// After the first run the task is registered with cron.
	deadline := time.Now().Add(5 * time.Second)
	for len(s.GetTaskInfo()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("delayed task was not moved to cron")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_RemoveTask_CancelsPending(t *testing.T) {
	s := NewScheduler(slog.Default())

	var runs atomic.Int32
	task := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}

	if err := s.AddDelayedIntervalTask("delayed", 20*time.Millisecond, time.Hour, task); err != nil {
		t.Fatalf("Failed to add delayed task: %v", err)
	}
	s.RemoveTask("delayed")

	time.Sleep(60 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("removed task ran %d times", runs.Load())
	}
	if len(s.ListTasks()) != 0 {
		t.Errorf("Expected no tasks after remove, got %v", s.ListTasks())
	}
}

func TestScheduler_Stop_CancelsPending(t *testing.T) {
	s := NewScheduler(slog.Default())
	if err := s.AddDelayedIntervalTask("delayed", time.Hour, time.Hour, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Failed to add delayed task: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(s.ListTasks()) != 0 {
		t.Errorf("Expected pending task to be cancelled, got %v", s.ListTasks())
	}
	if s.IsRunning() {
		t.Error("Scheduler should not be running after Stop")
	}
}

func TestScheduler_AddDelayedIntervalTask_NoDelay(t *testing.T) {
	s := NewScheduler(slog.Default())
	if err := s.AddDelayedIntervalTask("now", 0, time.Hour, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}
	if len(s.GetTaskInfo()) != 1 {
		t.Error("Expected task to be registered with cron directly")
	}
}

func TestAddScheduledTask_CronOverridesInterval(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	task := func(ctx context.Context) error { return nil }

	err := addScheduledTask(s, log, "test_cron", "0 0 2 * * *", time.Minute, 5*time.Minute, task)
	if err != nil {
		t.Fatalf("addScheduledTask with cron schedule failed: %v", err)
	}

	if len(s.GetTaskInfo()) != 1 {
		t.Fatal("cron task should be registered immediately")
	}
	if len(s.pending) != 0 {
		t.Error("cron task should not be pending")
	}
}

func TestAddScheduledTask_FallbackToInterval(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	task := func(ctx context.Context) error { return nil }

	err := addScheduledTask(s, log, "test_interval", "", time.Hour, 5*time.Minute, task)
	if err != nil {
		t.Fatalf("addScheduledTask with interval fallback failed: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 || tasks[0] != "test_interval" {
		t.Fatalf("expected test_interval, got %v", tasks)
	}
	s.RemoveTask("test_interval")
}

func TestAddScheduledTask_InvalidCron(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)
	err := addScheduledTask(s, log, "bad", "every tuesday", 0, time.Minute, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(&config.Config{Sweep: config.SweepConfig{
		Enabled:        true,
		IntervalMs:     600000,
		InitialDelayMs: 60000,
		Schedule:       "0 0 3 * * *",
	}})

	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Errorf("SweepInterval = %v, want 10m", cfg.SweepInterval)
	}
	if cfg.SweepInitialDelay != time.Minute {
		t.Errorf("SweepInitialDelay = %v, want 1m", cfg.SweepInitialDelay)
	}
	if cfg.SweepSchedule != "0 0 3 * * *" {
		t.Errorf("SweepSchedule = %q", cfg.SweepSchedule)
	}
}

type fakeSweeper struct {
	reports []sweep.Report
	err     error
	calls   int
}

func (f *fakeSweeper) Run(ctx context.Context, tenants ...string) ([]sweep.Report, error) {
	f.calls++
	return f.reports, f.err
}

func TestSweepTask_Run(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "completed"},
		{name: "overlapping pass is not an error", err: sweep.ErrRunning},
		{name: "failure is reported", err: errors.New("store down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSweeper{reports: []sweep.Report{{Tenant: "a", Merged: 2}}, err: tt.err}
			err := NewSweepTask(f, slog.Default()).Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if f.calls != 1 {
				t.Errorf("sweeper called %d times, want 1", f.calls)
			}
		})
	}
}

type fakeReplacer struct {
	err   error
	calls int
}

func (f *fakeReplacer) Run(ctx context.Context, tenants ...string) ([]replace.Report, error) {
	f.calls++
	return []replace.Report{{Tenant: "a", Replaced: 3}}, f.err
}

type fakeCoercer struct {
	err   error
	calls int
}

func (f *fakeCoercer) Run(ctx context.Context, tenants ...string) ([]classify.Report, error) {
	f.calls++
	return []classify.Report{{Tenant: "a", Classified: 1}}, f.err
}

func TestJobTasks_Run(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "completed"},
		{name: "overlapping replacement", err: replace.ErrRunning},
		{name: "overlapping coercion", err: classify.ErrRunning},
		{name: "failure is reported", err: errors.New("store down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReplacer{err: tt.err}
			c := &fakeCoercer{err: tt.err}
			rErr := NewReplaceTask(r, slog.Default()).Run(context.Background())
			cErr := NewCoercionTask(c, slog.Default()).Run(context.Background())

			// Each task only swallows its own overlap error.
			wantR := tt.wantErr || errors.Is(tt.err, classify.ErrRunning)
			wantC := tt.wantErr || errors.Is(tt.err, replace.ErrRunning)
			if (rErr != nil) != wantR {
				t.Errorf("ReplaceTask.Run() error = %v, want error %v", rErr, wantR)
			}
			if (cErr != nil) != wantC {
				t.Errorf("CoercionTask.Run() error = %v, want error %v", cErr, wantC)
			}
			if r.calls != 1 || c.calls != 1 {
				t.Errorf("calls = %d/%d, want 1/1", r.calls, c.calls)
			}
		})
	}
}

func TestRegisterTasks_OnlyEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{name: "nothing enabled", cfg: Config{}},
		{
			name: "replacement only",
			cfg:  Config{ReplaceEnabled: true, ReplaceInitialDelay: time.Hour, ReplaceInterval: time.Hour},
			want: []string{ReplaceTaskName},
		},
		{
			name: "coercion on cron",
			cfg:  Config{CoercionEnabled: true, CoercionSchedule: "0 0 4 * * *"},
			want: []string{CoercionTaskName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := slog.Default()
			s := NewScheduler(log)
			err := RegisterTasks(TaskParams{
				Scheduler: s,
				Sweep:     NewSweepTask(&fakeSweeper{}, log),
				Replace:   NewReplaceTask(&fakeReplacer{}, log),
				Coercion:  NewCoercionTask(&fakeCoercer{}, log),
				Log:       log,
				Cfg:       &tt.cfg,
			})
			if err != nil {
				t.Fatalf("RegisterTasks() error = %v", err)
			}
			got := s.ListTasks()
			if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
				t.Errorf("ListTasks() = %v, want %v", got, tt.want)
			}
			for _, name := range got {
				s.RemoveTask(name)
			}
		})
	}
}

func TestNewConfig_MaintenanceJobs(t *testing.T) {
	cfg := NewConfig(&config.Config{
		Replace:  config.ReplaceConfig{Enabled: true, IntervalMs: 3600000, InitialDelayMs: 120000},
		Coercion: config.CoercionConfig{Schedule: "0 0 4 * * *"},
	})

	if cfg.Enabled || !cfg.ReplaceEnabled || cfg.CoercionEnabled {
		t.Errorf("enabled = %v/%v/%v, want false/true/false", cfg.Enabled, cfg.ReplaceEnabled, cfg.CoercionEnabled)
	}
	if !cfg.AnyEnabled() {
		t.Error("AnyEnabled() = false, want true")
	}
	if cfg.ReplaceInterval != time.Hour || cfg.ReplaceInitialDelay != 2*time.Minute {
		t.Errorf("replace timing = %v/%v, want 1h/2m", cfg.ReplaceInterval, cfg.ReplaceInitialDelay)
	}
	if cfg.CoercionSchedule != "0 0 4 * * *" {
		t.Errorf("CoercionSchedule = %q", cfg.CoercionSchedule)
	}
	if (&Config{}).AnyEnabled() {
		t.Error("AnyEnabled() on zero config = true, want false")
	}
}
