// Package config loads and validates the process-wide configuration.
//
// The configuration is read once at startup and passed by reference to
// every component at construction. It is never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the chimera process.
type Config struct {
	Actor         ActorConfig         `yaml:"actor"`
	Retry         RetryConfig         `yaml:"retry"`
	Breaker       BreakerConfig       `yaml:"circuit_breaker"`
	DLQ           DLQConfig           `yaml:"dead_letter_queue"`
	EventStore    EventStoreConfig    `yaml:"event_store"`
	Mode          ModeConfig          `yaml:"mode"`
	Limits        LimitsConfig        `yaml:"limits"`
	LLM           LLMConfig           `yaml:"llm"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ActorConfig tunes the actor system and per-actor mailboxes.
type ActorConfig struct {
	SystemName      string        `yaml:"system_name"`
	QueueSize       int           `yaml:"queue_size"`
	MessageTimeout  time.Duration `yaml:"message_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
}

// RetryConfig tunes the retry executor wrapping message handling.
type RetryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// BreakerConfig tunes the circuit breaker guarding external dependencies.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// DLQConfig tunes the dead letter queue.
type DLQConfig struct {
	MaxSize         int           `yaml:"max_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Retention       time.Duration `yaml:"retention"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
}

// EventStoreConfig tunes the in-memory event store.
type EventStoreConfig struct {
	MaxMemoryEvents  int           `yaml:"max_memory_events"`
	StreamCacheSize  int           `yaml:"stream_cache_size"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	CleanupBatchSize int           `yaml:"cleanup_batch_size"`
}

// ModeConfig tunes the conversational mode detector.
type ModeConfig struct {
	HistorySize         int     `yaml:"history_size"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NormalizationFactor float64 `yaml:"normalization_factor"`
	// PatternsFile optionally overrides the built-in lexical patterns.
	PatternsFile string `yaml:"patterns_file"`
}

// LimitsConfig tunes per-user throttling for demo access.
type LimitsConfig struct {
	DailyMessageLimit int     `yaml:"daily_message_limit"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
	RedisAddr         string  `yaml:"redis_addr"`
}

// LLMConfig configures the chat completion backend.
type LLMConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	BotToken         string        `yaml:"bot_token"`
	PollingTimeout   int           `yaml:"polling_timeout"`
	MaxMessageLength int           `yaml:"max_message_length"`
	TypingInterval   time.Duration `yaml:"typing_interval"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsPort    int    `yaml:"metrics_port"`
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"` // otlp, stdout, or none
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Actor: ActorConfig{
			SystemName:      "chimera",
			QueueSize:       1000,
			MessageTimeout:  time.Second,
			ShutdownTimeout: 5 * time.Second,
			IdleTTL:         30 * time.Minute,
		},
		Retry: RetryConfig{
			Enabled:    true,
			MaxRetries: 3,
			Delay:      100 * time.Millisecond,
			MaxDelay:   2 * time.Second,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		DLQ: DLQConfig{
			MaxSize:         1000,
			CleanupInterval: time.Hour,
			Retention:       24 * time.Hour,
			MetricsEnabled:  true,
		},
		EventStore: EventStoreConfig{
			MaxMemoryEvents:  10000,
			StreamCacheSize:  100,
			CleanupInterval:  time.Hour,
			CleanupBatchSize: 100,
		},
		Mode: ModeConfig{
			HistorySize:         5,
			ConfidenceThreshold: 0.3,
			NormalizationFactor: 1.5,
		},
		Limits: LimitsConfig{
			DailyMessageLimit: 10,
			MessagesPerSecond: 1,
			Burst:             3,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.deepseek.com/v1",
			Model:      "deepseek-chat",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Telegram: TelegramConfig{
			PollingTimeout:   30,
			MaxMessageLength: 4096,
			TypingInterval:   5 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsPort:   8080,
			LogLevel:      "info",
			TraceExporter: "none",
		},
	}
}

// Load reads configuration from a YAML file, applies defaults for unset
// fields and pulls secrets from the environment when absent from the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Secrets come from the environment when not in the file.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Limits.RedisAddr == "" {
		cfg.Limits.RedisAddr = os.Getenv("REDIS_ADDR")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all tunables are inside their allowed ranges.
func (c *Config) Validate() error {
	if c.Actor.QueueSize <= 0 {
		return fmt.Errorf("actor.queue_size must be positive, got %d", c.Actor.QueueSize)
	}
	if c.Actor.MessageTimeout <= 0 {
		return fmt.Errorf("actor.message_timeout must be positive, got %s", c.Actor.MessageTimeout)
	}
	if c.Actor.ShutdownTimeout <= 0 {
		return fmt.Errorf("actor.shutdown_timeout must be positive, got %s", c.Actor.ShutdownTimeout)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Enabled && c.Retry.Delay <= 0 {
		return fmt.Errorf("retry.delay must be positive, got %s", c.Retry.Delay)
	}
	if c.Retry.Enabled && c.Retry.MaxDelay < c.Retry.Delay {
		return fmt.Errorf("retry.max_delay %s is below retry.delay %s", c.Retry.MaxDelay, c.Retry.Delay)
	}
	if c.Breaker.Enabled && c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Enabled && c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.recovery_timeout must be positive, got %s", c.Breaker.RecoveryTimeout)
	}
	if c.DLQ.MaxSize <= 0 {
		return fmt.Errorf("dead_letter_queue.max_size must be positive, got %d", c.DLQ.MaxSize)
	}
	if c.EventStore.MaxMemoryEvents <= 0 {
		return fmt.Errorf("event_store.max_memory_events must be positive, got %d", c.EventStore.MaxMemoryEvents)
	}
	if c.EventStore.StreamCacheSize <= 0 {
		return fmt.Errorf("event_store.stream_cache_size must be positive, got %d", c.EventStore.StreamCacheSize)
	}
	if c.EventStore.CleanupBatchSize <= 0 {
		return fmt.Errorf("event_store.cleanup_batch_size must be positive, got %d", c.EventStore.CleanupBatchSize)
	}
	if c.Mode.HistorySize <= 0 {
		return fmt.Errorf("mode.history_size must be positive, got %d", c.Mode.HistorySize)
	}
	if c.Mode.ConfidenceThreshold < 0 || c.Mode.ConfidenceThreshold > 1 {
		return fmt.Errorf("mode.confidence_threshold must be in [0,1], got %g", c.Mode.ConfidenceThreshold)
	}
	if c.Mode.NormalizationFactor <= 0 {
		return fmt.Errorf("mode.normalization_factor must be positive, got %g", c.Mode.NormalizationFactor)
	}
	if c.Limits.DailyMessageLimit < 0 {
		return fmt.Errorf("limits.daily_message_limit must not be negative, got %d", c.Limits.DailyMessageLimit)
	}
	return nil
}
