// Package delivery fans accepted events out to topic subscribers and drives
// the subscription validation handshake.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gridsim/internal/admission"
	"gridsim/internal/broker"
	"gridsim/internal/constants"
	"gridsim/internal/logger"
	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/logging"
	"gridsim/pkg/metrics"
	"gridsim/pkg/models"
	"gridsim/pkg/tracing"
)

// Dispatcher is the admission Forwarder. Notifications are handed to
// background goroutines so the publisher gets its reply without waiting on
// subscribers; each subscriber gets a single attempt.
type Dispatcher struct {
	subscriptions  *SubscriptionRegistry
	sender         Sender
	producer       broker.Producer
	logger         logger.Logger
	advertisedHost string
	now            func() time.Time

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithAdvertisedHost(host string) DispatcherOption {
	return func(d *Dispatcher) { d.advertisedHost = host }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(subscriptions *SubscriptionRegistry, sender Sender, producer broker.Producer, log logger.Logger, opts ...DispatcherOption) *Dispatcher {
	if producer == nil {
		producer = broker.NoopProducer{}
	}
	d := &Dispatcher{
		subscriptions:  subscriptions,
		sender:         sender,
		producer:       producer,
		logger:         log,
		advertisedHost: constants.DefaultAdvertisedHost,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ admission.Forwarder = (*Dispatcher)(nil)

func (d *Dispatcher) DeliverNotification(ctx context.Context, desc *admission.RequestDescriptor, events []models.Event) (admission.Reply, error) {
	topicName := desc.Topic.Name
	stamped := stampEvents(topicName, events)

	// Deliveries outlive the request; keep its values but not its deadline.
	background := logging.WithTopic(context.WithoutCancel(ctx), topicName)

	for _, sub := range d.subscriptions.Active(topicName) {
		matched := d.filterEvents(background, sub, stamped)
		if len(matched) == 0 {
			continue
		}
		d.goSafe(background, func() {
			d.deliver(background, sub, matched)
		})
	}

	if len(stamped) > 0 {
		d.goSafe(background, func() {
			if err := d.producer.Publish(background, topicName, stamped); err != nil {
				d.logger.ErrorwCtx(background, "Failed to mirror events to broker", "error", err)
			}
		})
	}

	d.logger.InfowCtx(ctx, "Events accepted", "count", len(stamped))
	return admission.Reply{Status: http.StatusOK}, nil
}

func (d *Dispatcher) AcknowledgeValidation(ctx context.Context, desc *admission.RequestDescriptor, code string) (admission.Reply, error) {
	sub, ok := d.subscriptions.Validate(desc.Topic.Name, code)
	if !ok {
		d.logger.WarnwCtx(ctx, "Unknown validation code", "code", code)
		return admission.Reply{}, apperrors.ErrValidationCode
	}

	d.logger.InfowCtx(ctx, "Subscription validated", "subscriber", sub.Name)
	return admission.Reply{Status: http.StatusOK, Body: constants.ValidationSuccessMessage}, nil
}

// SendValidationEvents posts a validation event to every subscriber still
// waiting for its handshake. A subscriber that echoes the code back in its
// response is validated immediately; others must GET the validation URL.
func (d *Dispatcher) SendValidationEvents(ctx context.Context) {
	for _, sub := range d.subscriptions.Pending() {
		d.goSafe(ctx, func() {
			d.sendValidation(ctx, sub)
		})
	}
}

func (d *Dispatcher) sendValidation(ctx context.Context, sub *Subscriber) {
	ctx = logging.WithTopic(ctx, sub.Topic)
	code := sub.ValidationCode.String()
	validationURL := fmt.Sprintf("http://%s:%d%s?%s=%s",
		d.advertisedHost, sub.TopicPort, constants.ValidationPath, constants.ValidationParam, code)

	evt := models.NewEventBuilder().
		WithID(uuid.NewString()).
		WithEventType(models.EventTypeSubscriptionValidation).
		WithEventTime(d.now().UTC().Format(time.RFC3339Nano)).
		WithTopic(topicResource(sub.Topic)).
		WithDataVersion("1").
		WithMetadataVersion(models.MetadataVersion).
		WithData(models.SubscriptionValidationData{
			ValidationCode: code,
			ValidationURL:  validationURL,
		}).
		Build()

	header := subscriberHeader(sub, models.EventTypeValidation, evt.DataVersion)
	respBody, err := d.send(ctx, sub, header, []models.Event{evt})
	if err != nil {
		d.logger.WarnwCtx(ctx, "Subscription validation event not delivered",
			"subscriber", sub.Name,
			"endpoint", sub.Endpoint,
			"validation_url", validationURL,
			"error", err,
		)
		return
	}

	var ack models.ValidationAcknowledgement
	if len(respBody) > 0 && codec.Unmarshal(respBody, &ack) == nil {
		if echoed, err := uuid.Parse(ack.ValidationResponse); err == nil && echoed == sub.ValidationCode {
			d.subscriptions.Validate(sub.Topic, code)
			d.logger.InfowCtx(ctx, "Subscription validated", "subscriber", sub.Name)
			return
		}
	}

	d.logger.InfowCtx(ctx, "Subscription awaiting validation",
		"subscriber", sub.Name,
		"validation_url", validationURL,
	)
}

func (d *Dispatcher) filterEvents(ctx context.Context, sub *Subscriber, events []models.Event) []models.Event {
	if sub.filter == nil {
		return events
	}

	matched := make([]models.Event, 0, len(events))
	for _, evt := range events {
		ok, err := sub.filter.Match(ctx, evt)
		if err != nil {
			d.logger.DebugwCtx(ctx, "Filter evaluation failed",
				"subscriber", sub.Name,
				"event_id", evt.ID,
				"error", err,
			)
		}
		if err != nil || !ok {
			metrics.IncDeliveryFiltered(sub.Topic, sub.Name)
			continue
		}
		matched = append(matched, evt)
	}
	return matched
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscriber, events []models.Event) {
	header := subscriberHeader(sub, models.EventTypeNotification, events[0].DataVersion)

	start := time.Now()
	_, err := d.send(ctx, sub, header, events)
	metrics.ObserveDeliveryDuration(sub.Topic, sub.Name, time.Since(start))

	if err != nil {
		metrics.IncDeliveryAttempt(sub.Topic, sub.Name, "failed")
		d.logger.WarnwCtx(ctx, "Delivery failed",
			"subscriber", sub.Name,
			"endpoint", sub.Endpoint,
			"count", len(events),
			"error", err,
		)
		return
	}

	metrics.IncDeliveryAttempt(sub.Topic, sub.Name, "delivered")
	d.logger.DebugwCtx(ctx, "Delivered",
		"subscriber", sub.Name,
		"count", len(events),
	)
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscriber, header http.Header, events []models.Event) ([]byte, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "delivery.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gridsim.topic", sub.Topic),
			attribute.String("gridsim.subscriber", sub.Name),
			attribute.String("gridsim.event_type", header.Get(models.HeaderEventType)),
			attribute.Int("gridsim.event_count", len(events)),
		),
	)
	defer span.End()

	var respBody []byte
	call := func(ctx context.Context) error {
		var err error
		respBody, err = d.sender.Send(ctx, sub.Endpoint, header, events)
		return err
	}

	var err error
	if sub.breaker != nil {
		err = sub.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return respBody, err
}

func (d *Dispatcher) goSafe(ctx context.Context, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.ErrorwCtx(ctx, "Panic recovered in delivery", "error", apperrors.RecoverPanic(r))
			}
		}()
		fn()
	}()
}

// Close waits for in-flight deliveries until ctx is done, then closes the
// broker sink.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("deliveries still in flight: %w", ctx.Err())
	}

	if err := d.producer.Close(); err != nil {
		return fmt.Errorf("failed to close broker: %w", err)
	}
	return waitErr
}

func stampEvents(topicName string, events []models.Event) []models.Event {
	resource := topicResource(topicName)
	out := make([]models.Event, len(events))
	for i, evt := range events {
		evt.Topic = resource
		evt.MetadataVersion = models.MetadataVersion
		out[i] = evt
	}
	return out
}

func topicResource(topicName string) string {
	return fmt.Sprintf(constants.TopicResourceFormat, uuid.Nil.String(), topicName)
}

func subscriberHeader(sub *Subscriber, eventType, dataVersion string) http.Header {
	header := http.Header{}
	header.Set(models.HeaderEventType, eventType)
	header.Set(models.HeaderSubscriptionName, strings.ToUpper(sub.Name))
	header.Set(models.HeaderDataVersion, dataVersion)
	header.Set(models.HeaderMetadataVersion, models.MetadataVersion)
	header.Set(models.HeaderDeliveryCount, "0")
	return header
}
