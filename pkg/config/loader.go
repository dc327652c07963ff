// Configuration loading: YAML files with ${VAR} substitution, and
// environment-variable overrides through viper under the ASSETSYNC_ prefix
// (e.g. ASSETSYNC_CONCURRENCY_GLOBAL_OPERATIONS=20).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Substitute environment variables
	content := string(data)
	content = substituteEnvVars(content)

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FromEnv builds a PipelineConfig from defaults, an optional YAML file, and
// environment overrides, in that precedence order (env wins).
func FromEnv(name, filePath string) (*PipelineConfig, error) {
	cfg := NewPipelineConfig(name)

	if filePath != "" {
		if err := Load(filePath, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ASSETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindInt := func(key string, target *int) {
		if v.IsSet(key) {
			*target = v.GetInt(key)
		}
	}

	bindInt("concurrency.global_operations", &cfg.Concurrency.GlobalOperations)
	bindInt("concurrency.type_operations", &cfg.Concurrency.TypeOperations)
	bindInt("concurrency.processor_operations", &cfg.Concurrency.ProcessorOperations)
	bindInt("concurrency.aux_operations", &cfg.Concurrency.AuxOperations)
	bindInt("concurrency.page_fetches", &cfg.Concurrency.PageFetches)
	bindInt("concurrency.store_reads", &cfg.Concurrency.StoreReads)
	bindInt("concurrency.store_writes", &cfg.Concurrency.StoreWrites)
	bindInt("concurrency.page_size", &cfg.Concurrency.PageSize)
	bindInt("concurrency.progress_log_interval", &cfg.Concurrency.ProgressLogInterval)
	bindInt("retry.attempts", &cfg.Retry.Attempts)
	bindInt("retry.throttled_attempts", &cfg.Retry.ThrottledAttempts)

	if v.IsSet("retry.initial_delay") {
		cfg.Retry.InitialDelay = v.GetDuration("retry.initial_delay")
	}
	if v.IsSet("retry.max_delay") {
		cfg.Retry.MaxDelay = v.GetDuration("retry.max_delay")
	}
	if v.IsSet("retry.jitter_fraction") {
		cfg.Retry.JitterFraction = v.GetFloat64("retry.jitter_fraction")
	}
	if v.IsSet("remote.base_url") {
		cfg.Remote.BaseURL = v.GetString("remote.base_url")
	}
	if v.IsSet("remote.token") {
		cfg.Remote.Token = v.GetString("remote.token")
	}
	if v.IsSet("remote.request_timeout") {
		cfg.Remote.RequestTimeout = v.GetDuration("remote.request_timeout")
	}
	if v.IsSet("storage.bucket") {
		cfg.Storage.Bucket = v.GetString("storage.bucket")
	}
	if v.IsSet("storage.prefix") {
		cfg.Storage.Prefix = v.GetString("storage.prefix")
	}
	if v.IsSet("storage.region") {
		cfg.Storage.Region = v.GetString("storage.region")
	}
	if v.IsSet("storage.compress") {
		cfg.Storage.Compress = v.GetBool("storage.compress")
	}
	if v.IsSet("observability.log_level") {
		cfg.Observability.LogLevel = v.GetString("observability.log_level")
	}
	if v.IsSet("observability.enable_tracing") {
		cfg.Observability.EnableTracing = v.GetBool("observability.enable_tracing")
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
