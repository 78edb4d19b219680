package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/domain/classify"
	"github.com/emergent-company/graphmerge/domain/replace"
	"github.com/emergent-company/graphmerge/domain/sweep"
	"github.com/emergent-company/graphmerge/pkg/logger"
)

// Task names the jobs are registered under.
const (
	SweepTaskName    = "duplicate_sweep"
	ReplaceTaskName  = "identifier_replacement"
	CoercionTaskName = "type_coercion"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
		func(s *sweep.Sweeper, log *slog.Logger) *SweepTask { return NewSweepTask(s, log) },
		func(r *replace.Replacer, log *slog.Logger) *ReplaceTask { return NewReplaceTask(r, log) },
		func(c *classify.Coercer, log *slog.Logger) *CoercionTask { return NewCoercionTask(c, log) },
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Sweep     *SweepTask
	Replace   *ReplaceTask
	Coercion  *CoercionTask
	Log       *slog.Logger
	Cfg       *Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.AnyEnabled() {
		p.Log.Info("all jobs disabled, skipping task registration")
		return nil
	}

	if p.Cfg.Enabled {
		if err := addScheduledTask(p.Scheduler, p.Log, SweepTaskName,
			p.Cfg.SweepSchedule, p.Cfg.SweepInitialDelay, p.Cfg.SweepInterval, p.Sweep.Run); err != nil {
			return err
		}
	}
	if p.Cfg.ReplaceEnabled {
		if err := addScheduledTask(p.Scheduler, p.Log, ReplaceTaskName,
			p.Cfg.ReplaceSchedule, p.Cfg.ReplaceInitialDelay, p.Cfg.ReplaceInterval, p.Replace.Run); err != nil {
			return err
		}
	}
	if p.Cfg.CoercionEnabled {
		if err := addScheduledTask(p.Scheduler, p.Log, CoercionTaskName,
			p.Cfg.CoercionSchedule, p.Cfg.CoercionInitialDelay, p.Cfg.CoercionInterval, p.Coercion.Run); err != nil {
			return err
		}
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// addScheduledTask uses the cron schedule when one is set and the delayed
// interval otherwise.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, schedule string, delay, interval time.Duration, task TaskFunc) error {
	if schedule != "" {
		if err := s.AddCronTask(name, schedule, task); err != nil {
			log.Error("failed to register cron task",
				slog.String("name", name),
				slog.String("schedule", schedule),
				logger.Error(err))
			return err
		}
		return nil
	}
	if err := s.AddDelayedIntervalTask(name, delay, interval, task); err != nil {
		log.Error("failed to register interval task",
			slog.String("name", name),
			logger.Error(err))
		return err
	}
	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.AnyEnabled() {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
