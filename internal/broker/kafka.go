package broker

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"gridsim/internal/config"
	"gridsim/internal/constants"
	"gridsim/internal/logger"
	"gridsim/pkg/metrics"
	"gridsim/pkg/models"
	"gridsim/pkg/tracing"
)

const (
	headerTopicName = "aeg-topic-name"
	metricsService  = "delivery"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	topic  string
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic, logger: log}
}

// Publish writes one Kafka message per event, keyed by event id so that
// retransmissions of the same event land on the same partition.
func (p *KafkaProducer) Publish(ctx context.Context, topicName string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs, err := buildMessages(ctx, topicName, events)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}
	metrics.ObserveKafkaWriteDuration(metricsService, p.topic, time.Since(start))

	for _, m := range msgs {
		metrics.IncKafkaMessagesWritten(metricsService, p.topic)
		metrics.ObserveKafkaMessageSize(metricsService, p.topic, "out", len(m.Value))
	}

	p.logger.DebugwCtx(ctx, "Events mirrored to kafka",
		"kafka_topic", p.topic,
		"count", len(msgs),
	)
	return nil
}

func buildMessages(ctx context.Context, topicName string, events []models.Event) ([]kafka.Message, error) {
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		body, err := codec.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
		}

		headers := []kafka.Header{
			{Key: models.HeaderEventType, Value: []byte(models.EventTypeNotification)},
			{Key: headerTopicName, Value: []byte(topicName)},
		}
		headers = tracing.InjectTraceContext(ctx, headers)

		msgs = append(msgs, kafka.Message{
			Key:     []byte(evt.ID),
			Value:   body,
			Headers: headers,
			Time:    now,
		})
	}
	return msgs, nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
