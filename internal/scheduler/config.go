package scheduler

import (
	"time"

	"github.com/smallbiznis/shopfloor/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// LeaseTTL bounds how long one instance holds a job lease in Redis.
	LeaseTTL    time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 30 * time.Second,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
		LeaseTTL:    time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}

// ProvideConfig reads scheduler tuning from the workflow config.
func ProvideConfig(holder *config.WorkflowConfigHolder) Config {
	wf := holder.Get()
	return Config{
		RunInterval: wf.Scheduler.RunInterval,
		BatchSize:   wf.StatusSync.BatchSize,
		JobTimeout:  wf.Scheduler.JobTimeout,
	}.withDefaults()
}
