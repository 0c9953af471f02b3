package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvPipelineStoreEventWorkers  = "SCRIVENER_PIPELINE_STORE_EVENT_WORKERS"
	EnvPipelineNotifyWorkers      = "SCRIVENER_PIPELINE_NOTIFY_WORKERS"
	EnvPipelineQueueSize          = "SCRIVENER_PIPELINE_QUEUE_SIZE"
	EnvPipelineQueueDeliveries    = "SCRIVENER_PIPELINE_QUEUE_DELIVERIES"
	EnvPipelineLookupAttempts     = "SCRIVENER_PIPELINE_LOOKUP_ATTEMPTS"
	EnvPipelineExtractionAttempts = "SCRIVENER_PIPELINE_EXTRACTION_ATTEMPTS"
	EnvPipelineExtractionTimeout  = "SCRIVENER_PIPELINE_EXTRACTION_TIMEOUT"
	EnvPipelineDeliveryAttempts   = "SCRIVENER_PIPELINE_DELIVERY_ATTEMPTS"
	EnvPipelineCallbackTimeout    = "SCRIVENER_PIPELINE_CALLBACK_TIMEOUT"
	EnvPipelineRetryBase          = "SCRIVENER_PIPELINE_RETRY_BASE"
	EnvPipelineRetryCap           = "SCRIVENER_PIPELINE_RETRY_CAP"
	EnvPipelineFeedPollInterval   = "SCRIVENER_PIPELINE_FEED_POLL_INTERVAL"
	EnvPipelineFeedBatchSize      = "SCRIVENER_PIPELINE_FEED_BATCH_SIZE"
)

// PipelineConfig holds tuning for the asynchronous processing pipeline:
// queue dimensions, worker counts, retry budgets, and stage timeouts.
type PipelineConfig struct {
	StoreEventWorkers  int    `toml:"store_event_workers"`
	NotifyWorkers      int    `toml:"notify_workers"`
	QueueSize          int    `toml:"queue_size"`
	QueueDeliveries    int    `toml:"queue_deliveries"`
	LookupAttempts     int    `toml:"lookup_attempts"`
	ExtractionAttempts int    `toml:"extraction_attempts"`
	ExtractionTimeout  string `toml:"extraction_timeout"`
	DeliveryAttempts   int    `toml:"delivery_attempts"`
	CallbackTimeout    string `toml:"callback_timeout"`
	RetryBase          string `toml:"retry_base"`
	RetryCap           string `toml:"retry_cap"`
	FeedPollInterval   string `toml:"feed_poll_interval"`
	FeedBatchSize      int    `toml:"feed_batch_size"`
}

// ExtractionTimeoutDuration returns ExtractionTimeout as a time.Duration.
func (c *PipelineConfig) ExtractionTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ExtractionTimeout)
	return d
}

// CallbackTimeoutDuration returns CallbackTimeout as a time.Duration.
func (c *PipelineConfig) CallbackTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallbackTimeout)
	return d
}

// RetryBaseDuration returns RetryBase as a time.Duration.
func (c *PipelineConfig) RetryBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBase)
	return d
}

// RetryCapDuration returns RetryCap as a time.Duration.
func (c *PipelineConfig) RetryCapDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryCap)
	return d
}

// FeedPollIntervalDuration returns FeedPollInterval as a time.Duration.
func (c *PipelineConfig) FeedPollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.FeedPollInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.StoreEventWorkers != 0 {
		c.StoreEventWorkers = overlay.StoreEventWorkers
	}
	if overlay.NotifyWorkers != 0 {
		c.NotifyWorkers = overlay.NotifyWorkers
	}
	if overlay.QueueSize != 0 {
		c.QueueSize = overlay.QueueSize
	}
	if overlay.QueueDeliveries != 0 {
		c.QueueDeliveries = overlay.QueueDeliveries
	}
	if overlay.LookupAttempts != 0 {
		c.LookupAttempts = overlay.LookupAttempts
	}
	if overlay.ExtractionAttempts != 0 {
		c.ExtractionAttempts = overlay.ExtractionAttempts
	}
	if overlay.ExtractionTimeout != "" {
		c.ExtractionTimeout = overlay.ExtractionTimeout
	}
	if overlay.DeliveryAttempts != 0 {
		c.DeliveryAttempts = overlay.DeliveryAttempts
	}
	if overlay.CallbackTimeout != "" {
		c.CallbackTimeout = overlay.CallbackTimeout
	}
	if overlay.RetryBase != "" {
		c.RetryBase = overlay.RetryBase
	}
	if overlay.RetryCap != "" {
		c.RetryCap = overlay.RetryCap
	}
	if overlay.FeedPollInterval != "" {
		c.FeedPollInterval = overlay.FeedPollInterval
	}
	if overlay.FeedBatchSize != 0 {
		c.FeedBatchSize = overlay.FeedBatchSize
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.StoreEventWorkers == 0 {
		c.StoreEventWorkers = 4
	}
	if c.NotifyWorkers == 0 {
		c.NotifyWorkers = 2
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.QueueDeliveries == 0 {
		c.QueueDeliveries = 3
	}
	if c.LookupAttempts == 0 {
		c.LookupAttempts = 5
	}
	if c.ExtractionAttempts == 0 {
		c.ExtractionAttempts = 3
	}
	if c.ExtractionTimeout == "" {
		c.ExtractionTimeout = "30s"
	}
	if c.DeliveryAttempts == 0 {
		c.DeliveryAttempts = 3
	}
	if c.CallbackTimeout == "" {
		c.CallbackTimeout = "10s"
	}
	if c.RetryBase == "" {
		c.RetryBase = "250ms"
	}
	if c.RetryCap == "" {
		c.RetryCap = "5s"
	}
	if c.FeedPollInterval == "" {
		c.FeedPollInterval = "500ms"
	}
	if c.FeedBatchSize == 0 {
		c.FeedBatchSize = 50
	}
}

func (c *PipelineConfig) loadEnv() {
	loadInt(EnvPipelineStoreEventWorkers, &c.StoreEventWorkers)
	loadInt(EnvPipelineNotifyWorkers, &c.NotifyWorkers)
	loadInt(EnvPipelineQueueSize, &c.QueueSize)
	loadInt(EnvPipelineQueueDeliveries, &c.QueueDeliveries)
	loadInt(EnvPipelineLookupAttempts, &c.LookupAttempts)
	loadInt(EnvPipelineExtractionAttempts, &c.ExtractionAttempts)
	loadInt(EnvPipelineDeliveryAttempts, &c.DeliveryAttempts)
	loadInt(EnvPipelineFeedBatchSize, &c.FeedBatchSize)

	if v := os.Getenv(EnvPipelineExtractionTimeout); v != "" {
		c.ExtractionTimeout = v
	}
	if v := os.Getenv(EnvPipelineCallbackTimeout); v != "" {
		c.CallbackTimeout = v
	}
	if v := os.Getenv(EnvPipelineRetryBase); v != "" {
		c.RetryBase = v
	}
	if v := os.Getenv(EnvPipelineRetryCap); v != "" {
		c.RetryCap = v
	}
	if v := os.Getenv(EnvPipelineFeedPollInterval); v != "" {
		c.FeedPollInterval = v
	}
}

func loadInt(env string, target *int) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*target = n
		}
	}
}

func (c *PipelineConfig) validate() error {
	for name, value := range map[string]int{
		"store_event_workers": c.StoreEventWorkers,
		"notify_workers":      c.NotifyWorkers,
		"queue_size":          c.QueueSize,
		"queue_deliveries":    c.QueueDeliveries,
		"lookup_attempts":     c.LookupAttempts,
		"extraction_attempts": c.ExtractionAttempts,
		"delivery_attempts":   c.DeliveryAttempts,
		"feed_batch_size":     c.FeedBatchSize,
	} {
		if value < 1 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	for name, value := range map[string]string{
		"extraction_timeout": c.ExtractionTimeout,
		"callback_timeout":   c.CallbackTimeout,
		"retry_base":         c.RetryBase,
		"retry_cap":          c.RetryCap,
		"feed_poll_interval": c.FeedPollInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}
