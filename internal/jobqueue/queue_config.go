/*
Package jobqueue configuration - tunable parameters for the River queue.

### Performance tuning:
- Increase MaxWorkers for higher publish throughput
- Lower MaxWorkers to reduce database connection usage

### Reliability tuning:
- MaxRetries only matters for payload-load failures; transport failures
  complete the job (see jobqueue.go), so retry tuning never turns the
  realtime layer into a correctness dependency
*/
package jobqueue

import (
	"os"
	"strconv"
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent publish workers (default: 10).
	MaxWorkers int

	// MaxRetries is the maximum retry attempts per job (default: 5).
	MaxRetries int

	// JobTimeout is the maximum time a single publish can run (default: 30s).
	JobTimeout time.Duration
}

// GetQueueConfig returns the queue configuration with environment overrides.
func GetQueueConfig() *QueueConfig {
	config := &QueueConfig{
		MaxWorkers: 10,
		MaxRetries: 5,
		JobTimeout: 30 * time.Second,
	}

	if v := os.Getenv("THREADLINE_QUEUE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxWorkers = n
		}
	}
	if v := os.Getenv("THREADLINE_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxRetries = n
		}
	}

	return config
}

// RiverQueueConfig builds the per-queue settings for the River client.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
