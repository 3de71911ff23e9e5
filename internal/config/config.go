package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Logging        LoggingConfig
	Topics         []TopicConfig        `mapstructure:"topics"`
	Delivery       DeliveryConfig       `mapstructure:"delivery"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig
}

// ServerConfig describes the admin listener (health and metrics) and the
// host name advertised in subscription validation URLs.
type ServerConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TopicConfig struct {
	Name        string             `mapstructure:"name"`
	Port        int                `mapstructure:"port"`
	Key         string             `mapstructure:"key"`
	Subscribers []SubscriberConfig `mapstructure:"subscribers"`
}

type SubscriberConfig struct {
	Name              string `mapstructure:"name"`
	Endpoint          string `mapstructure:"endpoint"`
	DisableValidation bool   `mapstructure:"disable_validation"`
	Filter            string `mapstructure:"filter"` // CEL expression over the event; empty matches everything
}

type DeliveryConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BrokerConfig configures the optional sink that mirrors accepted events.
type BrokerConfig struct {
	Type  string      `mapstructure:"type"` // "" (disabled) or "kafka"
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
