package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. ANONYMIZER_SERVER_PORT=9090.
const EnvPrefix = "ANONYMIZER"

// Loader reads configuration from file and environment variables and can
// watch the file for changes afterwards.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. configPath may be empty, in which case the
// usual search paths are tried and a missing file is not an error.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/llm-anonymizer/")
	v.AddConfigPath("$HOME/.llm-anonymizer/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v, GetDefaults())

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the configuration file (if any), applies env overrides and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ConfigFile returns the file that was read, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) unmarshal() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch starts watching the configuration file for changes. Invalid
// revisions are reported to onError and otherwise ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := l.unmarshal()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}

	if config.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions.max_sessions must be positive")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("rate_limit.requests_per_min must be positive when rate limiting is enabled")
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when the cache is enabled")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit.database_url is required when auditing is enabled")
	}

	if config.NER.Enabled {
		if config.NER.ModelPath == "" || config.NER.VocabPath == "" {
			return fmt.Errorf("ner.model_path and ner.vocab_path are required when NER is enabled")
		}
		if len(config.NER.Labels) == 0 {
			return fmt.Errorf("ner.labels must not be empty when NER is enabled")
		}
	}

	if config.Batch.BatchSize <= 0 || config.Batch.WorkerCount <= 0 {
		return fmt.Errorf("batch.batch_size and batch.worker_count must be positive")
	}

	return nil
}

// setDefaults registers every default with viper so that environment
// overrides resolve for keys absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("privacy.categories", d.Privacy.Categories)
	v.SetDefault("privacy.preserve_grammar", d.Privacy.PreserveGrammar)
	v.SetDefault("privacy.parallel_detectors", d.Privacy.ParallelDetectors)

	v.SetDefault("ner.enabled", d.NER.Enabled)
	v.SetDefault("ner.model_path", d.NER.ModelPath)
	v.SetDefault("ner.vocab_path", d.NER.VocabPath)
	v.SetDefault("ner.labels", d.NER.Labels)
	v.SetDefault("ner.max_length", d.NER.MaxLength)
	v.SetDefault("ner.lowercase", d.NER.Lowercase)
	v.SetDefault("ner.shared_lib", d.NER.SharedLib)
	v.SetDefault("ner.person_label", d.NER.PersonLabel)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.required", d.Cache.Required)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.max_connections", d.Cache.MaxConnections)
	v.SetDefault("cache.min_idle_conns", d.Cache.MinIdleConns)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.timeout", d.Cache.Timeout)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.database_url", d.Audit.DatabaseURL)
	v.SetDefault("audit.max_open_conns", d.Audit.MaxOpenConns)
	v.SetDefault("audit.max_idle_conns", d.Audit.MaxIdleConns)
	v.SetDefault("audit.conn_max_lifetime", d.Audit.ConnMaxLifetime)
	v.SetDefault("audit.conn_max_idle_time", d.Audit.ConnMaxIdleTime)

	v.SetDefault("sessions.ttl", d.Sessions.TTL)
	v.SetDefault("sessions.max_sessions", d.Sessions.MaxSessions)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", d.RateLimit.RequestsPerMin)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)
	v.SetDefault("websocket.broadcast_masking", d.WebSocket.BroadcastMasking)
	v.SetDefault("websocket.broadcast_connections", d.WebSocket.BroadcastConnections)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("batch.batch_size", d.Batch.BatchSize)
	v.SetDefault("batch.worker_count", d.Batch.WorkerCount)
	v.SetDefault("batch.verify_round_trip", d.Batch.VerifyRoundTrip)
	v.SetDefault("batch.progress_report", d.Batch.ProgressReport)
}
