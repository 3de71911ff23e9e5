package broker

import (
	"context"

	"gridsim/pkg/models"
)

// Producer mirrors delivered events to an external sink. topicName is the
// simulator topic the events were posted to.
type Producer interface {
	Publish(ctx context.Context, topicName string, events []models.Event) error
	Close() error
}

type NoopProducer struct{}

func (NoopProducer) Publish(context.Context, string, []models.Event) error { return nil }

func (NoopProducer) Close() error { return nil }
