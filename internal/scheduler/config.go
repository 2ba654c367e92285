package scheduler

import (
	"time"

	"github.com/smallbiznis/schoolfee/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled      bool
	RunInterval  time.Duration
	BatchSize    int
	MaxBatches   int
	LockTTL      time.Duration
	JobTimeout   time.Duration
	JobsDisabled []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 15 * time.Minute,
		BatchSize:   100,
		MaxBatches:  20,
		LockTTL:     5 * time.Minute,
		JobTimeout:  2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Scheduler.Enabled,
		RunInterval:  cfg.Scheduler.RunInterval,
		BatchSize:    cfg.Scheduler.BatchSize,
		LockTTL:      cfg.Scheduler.LockTTL,
		JobsDisabled: cfg.Scheduler.JobsDisabled,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
