package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval      time.Duration
	JobTimeout       time.Duration
	RetryBatchSize   int
	DLQBatchSize     int
	SessionBatchSize int
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Minute,
		JobTimeout:       30 * time.Second,
		RetryBatchSize:   50,
		DLQBatchSize:     50,
		SessionBatchSize: 100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RetryBatchSize <= 0 {
		c.RetryBatchSize = defaults.RetryBatchSize
	}
	if c.DLQBatchSize <= 0 {
		c.DLQBatchSize = defaults.DLQBatchSize
	}
	if c.SessionBatchSize <= 0 {
		c.SessionBatchSize = defaults.SessionBatchSize
	}
	return c
}
