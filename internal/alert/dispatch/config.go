package dispatch

import "time"

// Config controls the dispatch worker and outbound delivery timeouts.
type Config struct {
	QueueSize      int
	Workers        int
	DeliverTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		Workers:        4,
		DeliverTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = defaults.DeliverTimeout
	}
	return c
}
