// Package config defines configuration parsing, validation, and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// Config holds all application configuration parsed from environment
// variables. Fields suffixed Secs/Millis/Minutes are plain integers on the
// wire; use the duration helpers below when a time.Duration is needed.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// Store
	DatabaseURL                string `env:"DATABASE_URL,required"`
	DatabaseMaxConnections     int    `env:"DATABASE_MAX_CONNECTIONS" envDefault:"100"`
	DatabaseMinConnections     int    `env:"DATABASE_MIN_CONNECTIONS" envDefault:"30"`
	DatabaseConnectTimeoutSecs int    `env:"DATABASE_CONNECT_TIMEOUT_SECS" envDefault:"8"`
	DatabaseAcquireTimeoutSecs int    `env:"DATABASE_ACQUIRE_TIMEOUT_SECS" envDefault:"8"`
	DatabaseIdleTimeoutSecs    int    `env:"DATABASE_IDLE_TIMEOUT_SECS" envDefault:"60"`
	DatabaseMaxLifetimeSecs    int    `env:"DATABASE_MAX_LIFETIME_SECS" envDefault:"60"`

	// Engine
	EngineMaxConcurrentJobs    int `env:"ENGINE_MAX_CONCURRENT_JOBS" envDefault:"10"`
	EngineRetryAttempts        int `env:"ENGINE_RETRY_ATTEMPTS" envDefault:"3"`
	EngineBaseDelayMinutes     int `env:"ENGINE_BASE_DELAY_MINUTES" envDefault:"2"`
	EngineTickIntervalMillis   int `env:"ENGINE_TICK_INTERVAL_MILLIS" envDefault:"500"`
	EngineErrorPauseSecs       int `env:"ENGINE_ERROR_PAUSE_SECS" envDefault:"5"`
	EngineSweepIntervalSecs    int `env:"ENGINE_SWEEP_INTERVAL_SECS" envDefault:"60"`
	EngineMaxProcessingAgeSecs int `env:"ENGINE_MAX_PROCESSING_AGE_SECS" envDefault:"300"`

	// Admin API / webhook client
	HTTPPort                int    `env:"HTTP_PORT" envDefault:"3000"`
	HTTPPoolIdleTimeoutSecs int    `env:"HTTP_POOL_IDLE_TIMEOUT_SECS" envDefault:"30"`
	HTTPRequestTimeoutSecs  int    `env:"HTTP_REQUEST_TIMEOUT_SECS" envDefault:"30"`
	HTTPRateLimitPerMin     int    `env:"HTTP_RATE_LIMIT_PER_MIN" envDefault:"60"`
	HTTPCORSAllowOrigins    string `env:"HTTP_CORS_ALLOW_ORIGINS" envDefault:"*"`
	HTTPShutdownTimeoutSecs int    `env:"HTTP_SHUTDOWN_TIMEOUT_SECS" envDefault:"30"`

	// Kafka producer
	KafkaBootstrapServers    []string `env:"KAFKA_BOOTSTRAP_SERVERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaDefaultTopic        string   `env:"KAFKA_DEFAULT_TOPIC" envDefault:"jobs"`
	KafkaProducerTimeoutSecs int      `env:"KAFKA_PRODUCER_TIMEOUT_SECS" envDefault:"30"`
	KafkaProducerRetries     int      `env:"KAFKA_PRODUCER_RETRIES" envDefault:"5"`
	KafkaBatchSize           int      `env:"KAFKA_BATCH_SIZE" envDefault:"16384"`
	KafkaCompressionType     string   `env:"KAFKA_COMPRESSION_TYPE" envDefault:"snappy"`

	// Observability
	MetricsPort     int    `env:"METRICS_PORT" envDefault:"3001"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"chronoq"`
}

// Load parses environment variables into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w: %v", domain.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field bounds that tag-level parsing cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("op=config.Validate: %w: Database URL cannot be empty", domain.ErrConfig)
	}
	if c.DatabaseMaxConnections < c.DatabaseMinConnections {
		return fmt.Errorf("op=config.Validate: %w: Max connections cannot be less than min connections", domain.ErrConfig)
	}
	if c.EngineMaxConcurrentJobs <= 0 {
		return fmt.Errorf("op=config.Validate: %w: Max concurrent jobs must be greater than 0", domain.ErrConfig)
	}
	if c.EngineRetryAttempts < 0 {
		return fmt.Errorf("op=config.Validate: %w: Retry attempts cannot be negative", domain.ErrConfig)
	}
	if c.EngineBaseDelayMinutes < 1 {
		return fmt.Errorf("op=config.Validate: %w: Base delay must be at least one minute", domain.ErrConfig)
	}
	if len(c.KafkaBootstrapServers) == 0 {
		return fmt.Errorf("op=config.Validate: %w: Kafka bootstrap servers cannot be empty", domain.ErrConfig)
	}
	if strings.TrimSpace(c.KafkaDefaultTopic) == "" {
		return fmt.Errorf("op=config.Validate: %w: Kafka default topic cannot be empty", domain.ErrConfig)
	}
	return nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// Duration helpers

func (c Config) DatabaseConnectTimeout() time.Duration {
	return time.Duration(c.DatabaseConnectTimeoutSecs) * time.Second
}

func (c Config) DatabaseAcquireTimeout() time.Duration {
	return time.Duration(c.DatabaseAcquireTimeoutSecs) * time.Second
}

func (c Config) DatabaseIdleTimeout() time.Duration {
	return time.Duration(c.DatabaseIdleTimeoutSecs) * time.Second
}

func (c Config) DatabaseMaxLifetime() time.Duration {
	return time.Duration(c.DatabaseMaxLifetimeSecs) * time.Second
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.EngineTickIntervalMillis) * time.Millisecond
}

func (c Config) ErrorPause() time.Duration {
	return time.Duration(c.EngineErrorPauseSecs) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.EngineSweepIntervalSecs) * time.Second
}

func (c Config) MaxProcessingAge() time.Duration {
	return time.Duration(c.EngineMaxProcessingAgeSecs) * time.Second
}

func (c Config) HTTPPoolIdleTimeout() time.Duration {
	return time.Duration(c.HTTPPoolIdleTimeoutSecs) * time.Second
}

func (c Config) HTTPRequestTimeout() time.Duration {
	return time.Duration(c.HTTPRequestTimeoutSecs) * time.Second
}

func (c Config) HTTPShutdownTimeout() time.Duration {
	return time.Duration(c.HTTPShutdownTimeoutSecs) * time.Second
}

func (c Config) KafkaProducerTimeout() time.Duration {
	return time.Duration(c.KafkaProducerTimeoutSecs) * time.Second
}
