package scheduler

import (
	"time"

	"github.com/emergent-company/graphmerge/internal/config"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the sweep task is registered
	Enabled bool

	// SweepInterval is the time between sweep passes
	SweepInterval time.Duration

	// SweepInitialDelay delays the first pass after start
	SweepInitialDelay time.Duration

	// SweepSchedule overrides the interval when set. Cron format with
	// seconds: "second minute hour day-of-month month day-of-week"
	SweepSchedule string

	// Identifier replacement task, same semantics as the sweep settings
	ReplaceEnabled      bool
	ReplaceInterval     time.Duration
	ReplaceInitialDelay time.Duration
	ReplaceSchedule     string

	// Type coercion task
	CoercionEnabled      bool
	CoercionInterval     time.Duration
	CoercionInitialDelay time.Duration
	CoercionSchedule     string
}

// AnyEnabled reports whether at least one task is registered
func (c *Config) AnyEnabled() bool {
	return c.Enabled || c.ReplaceEnabled || c.CoercionEnabled
}

// NewConfig derives the scheduler settings from the application config
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		Enabled:           cfg.Sweep.Enabled,
		SweepInterval:     cfg.Sweep.Interval(),
		SweepInitialDelay: cfg.Sweep.InitialDelay(),
		SweepSchedule:     cfg.Sweep.Schedule,

		ReplaceEnabled:      cfg.Replace.Enabled,
		ReplaceInterval:     cfg.Replace.Interval(),
		ReplaceInitialDelay: cfg.Replace.InitialDelay(),
		ReplaceSchedule:     cfg.Replace.Schedule,

		CoercionEnabled:      cfg.Coercion.Enabled,
		CoercionInterval:     cfg.Coercion.Interval(),
		CoercionInitialDelay: cfg.Coercion.InitialDelay(),
		CoercionSchedule:     cfg.Coercion.Schedule,
	}
}
