// Package config provides the unified configuration for the export pipeline.
// A single PipelineConfig structure carries every tuning knob, organized into
// sections:
//   - Concurrency: layered in-flight caps (remote API, sub-fetches, paging, store)
//   - Retry: backoff budgets for the standard and throttled tiers
//   - Storage: object store target and write behavior
//   - Observability: logging, metrics, tracing
//
// None of these knobs affect correctness, only throughput and back-pressure.
package config

import (
	"fmt"
	"time"
)

// PipelineConfig is the configuration for one export pipeline instance
type PipelineConfig struct {
	// Name identifies the pipeline instance
	Name string `yaml:"name" json:"name"`

	// Concurrency settings bound in-flight operations per class
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`

	// Retry settings for remote call backoff
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Remote settings for the resource-management API endpoint
	Remote RemoteConfig `yaml:"remote" json:"remote"`

	// Storage settings for the object store target
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ConcurrencyConfig bounds in-flight operations. Each class gets its own
// limiter because saturating the object store is a distinct failure mode from
// saturating the remote API.
type ConcurrencyConfig struct {
	// GlobalOperations caps concurrent remote API calls across the run
	GlobalOperations int `yaml:"global_operations" json:"global_operations"`
	// TypeOperations caps assets of one type processed concurrently
	TypeOperations int `yaml:"type_operations" json:"type_operations"`
	// ProcessorOperations caps sub-fetches within one asset's processing
	ProcessorOperations int `yaml:"processor_operations" json:"processor_operations"`
	// AuxOperations caps auxiliary operations (membership, ingestion history)
	AuxOperations int `yaml:"aux_operations" json:"aux_operations"`
	// PageFetches caps concurrent page fetches during listing
	PageFetches int `yaml:"page_fetches" json:"page_fetches"`
	// StoreReads caps concurrent object store reads during bulk rebuild
	StoreReads int `yaml:"store_reads" json:"store_reads"`
	// StoreWrites caps concurrent object store writes during flush
	StoreWrites int `yaml:"store_writes" json:"store_writes"`
	// PageSize is the listing page size (fixed ceiling)
	PageSize int `yaml:"page_size" json:"page_size"`
	// ProgressLogInterval logs listing progress every N pages
	ProgressLogInterval int `yaml:"progress_log_interval" json:"progress_log_interval"`
}

// RetryConfig carries the two retry tiers. The throttled tier serves
// categories the upstream API throttles heavily (permissions, tags).
type RetryConfig struct {
	Attempts              int           `yaml:"attempts" json:"attempts"`
	InitialDelay          time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay              time.Duration `yaml:"max_delay" json:"max_delay"`
	JitterFraction        float64       `yaml:"jitter_fraction" json:"jitter_fraction"`
	ThrottledAttempts     int           `yaml:"throttled_attempts" json:"throttled_attempts"`
	ThrottledInitialDelay time.Duration `yaml:"throttled_initial_delay" json:"throttled_initial_delay"`
}

// RemoteConfig describes the resource-management API endpoint. The token is
// normally supplied via ${ASSETSYNC_REMOTE_TOKEN} rather than the config file.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Token          string        `yaml:"token" json:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	EnableHTTP2    bool          `yaml:"enable_http2" json:"enable_http2"`
}

// StorageConfig describes the object store target
type StorageConfig struct {
	Bucket         string `yaml:"bucket" json:"bucket"`
	Prefix         string `yaml:"prefix" json:"prefix"`
	Region         string `yaml:"region" json:"region"`
	Compress       bool   `yaml:"compress" json:"compress"`
	UploadPartSize int64  `yaml:"upload_part_size" json:"upload_part_size"`
}

// ObservabilityConfig carries logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel      string `yaml:"log_level" json:"log_level"`
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing"`
}

// NewPipelineConfig creates a PipelineConfig with production defaults
func NewPipelineConfig(name string) *PipelineConfig {
	return &PipelineConfig{
		Name: name,
		Concurrency: ConcurrencyConfig{
			GlobalOperations:    10,
			TypeOperations:      4,
			ProcessorOperations: 4,
			AuxOperations:       5,
			PageFetches:         2,
			StoreReads:          5,
			StoreWrites:         5,
			PageSize:            100,
			ProgressLogInterval: 10,
		},
		Retry: RetryConfig{
			Attempts:              3,
			InitialDelay:          time.Second,
			MaxDelay:              30 * time.Second,
			JitterFraction:        0.25,
			ThrottledAttempts:     5,
			ThrottledInitialDelay: 2 * time.Second,
		},
		Remote: RemoteConfig{
			RequestTimeout: 30 * time.Second,
			EnableHTTP2:    true,
		},
		Storage: StorageConfig{
			Region:         "us-east-1",
			Compress:       false,
			UploadPartSize: 5 * 1024 * 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			EnableMetrics: true,
			EnableTracing: false,
		},
	}
}

// Validate checks the configuration for correctness
func (c *PipelineConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Concurrency.GlobalOperations <= 0 {
		return fmt.Errorf("concurrency.global_operations must be positive")
	}
	if c.Concurrency.PageSize <= 0 {
		return fmt.Errorf("concurrency.page_size must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return fmt.Errorf("retry.jitter_fraction must be in [0, 1]")
	}
	return nil
}
