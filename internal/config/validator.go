package config

import (
	"fmt"
	"net/url"
	"strings"

	"gridsim/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	errors = append(errors, validateTopics(cfg.Topics, cfg.Server.Port)...)

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errors = append(errors, err)
	}

	if err := validateRateLimit(cfg.RateLimit); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateTopics(topics []TopicConfig, adminPort int) []error {
	if len(topics) == 0 {
		return []error{&ValidationError{
			Field:   "topics",
			Message: "at least one topic is required",
		}}
	}

	var errs []error
	ports := make(map[int]string, len(topics))
	names := make(map[string]bool, len(topics))

	for i, topic := range topics {
		field := fmt.Sprintf("topics[%d]", i)

		if strings.TrimSpace(topic.Name) == "" {
			errs = append(errs, &ValidationError{Field: field + ".name", Message: "topic name is required"})
		} else if names[strings.ToLower(topic.Name)] {
			errs = append(errs, &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate topic name: %s", topic.Name)})
		}
		names[strings.ToLower(topic.Name)] = true

		switch {
		case topic.Port < 1 || topic.Port > 65535:
			errs = append(errs, &ValidationError{
				Field:   field + ".port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", topic.Port),
			})
		case topic.Port == adminPort:
			errs = append(errs, &ValidationError{
				Field:   field + ".port",
				Message: fmt.Sprintf("port %d is already used by the admin server", topic.Port),
			})
		case ports[topic.Port] != "":
			errs = append(errs, &ValidationError{
				Field:   field + ".port",
				Message: fmt.Sprintf("port %d is already used by topic %s", topic.Port, ports[topic.Port]),
			})
		default:
			ports[topic.Port] = topic.Name
		}

		for j, sub := range topic.Subscribers {
			if err := validateSubscriber(sub, fmt.Sprintf("%s.subscribers[%d]", field, j)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

func validateSubscriber(sub SubscriberConfig, field string) error {
	if strings.TrimSpace(sub.Name) == "" {
		return &ValidationError{Field: field + ".name", Message: "subscriber name is required"}
	}

	u, err := url.ParseRequestURI(sub.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   field + ".endpoint",
			Message: fmt.Sprintf("endpoint must be an absolute http(s) URL, got %q", sub.Endpoint),
		}
	}

	if sub.Filter != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		if err := evaluator.ValidateFilterExpression(sub.Filter); err != nil {
			return &ValidationError{
				Field:   field + ".filter",
				Message: fmt.Sprintf("invalid CEL expression: %v", err),
			}
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "Kafka topic is required",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: fmt.Sprintf("failure ratio must be between 0 and 1, got %v", cfg.FailureRatio),
		}
	}

	if cfg.Interval < 0 || cfg.Timeout < 0 {
		return &ValidationError{
			Field:   "circuit_breaker",
			Message: "interval and timeout must be non-negative",
		}
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RPS <= 0 {
		return &ValidationError{
			Field:   "rate_limit.rps",
			Message: "rps must be positive",
		}
	}

	if cfg.Burst < 1 {
		return &ValidationError{
			Field:   "rate_limit.burst",
			Message: "burst must be at least 1",
		}
	}

	return nil
}
