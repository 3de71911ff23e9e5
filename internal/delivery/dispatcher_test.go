package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"gridsim/internal/admission"
	"gridsim/internal/config"
	"gridsim/internal/logger"
	"gridsim/internal/topic"
	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

type captured struct {
	header http.Header
	events []models.Event
}

type webhook struct {
	*httptest.Server
	mu       sync.Mutex
	requests []captured
	respond  func(w http.ResponseWriter, events []models.Event)
}

func newWebhook(t *testing.T) *webhook {
	t.Helper()
	wh := &webhook{}
	wh.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var events []models.Event
		_ = json.Unmarshal(body, &events)

		wh.mu.Lock()
		wh.requests = append(wh.requests, captured{header: r.Header.Clone(), events: events})
		respond := wh.respond
		wh.mu.Unlock()

		if respond != nil {
			respond(w, events)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(wh.Close)
	return wh
}

func (wh *webhook) received() []captured {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	out := make([]captured, len(wh.requests))
	copy(out, wh.requests)
	return out
}

type recordingProducer struct {
	mu     sync.Mutex
	events []models.Event
	closed bool
}

func (p *recordingProducer) Publish(_ context.Context, _ string, events []models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingProducer) Close() error {
	p.closed = true
	return nil
}

func newDispatcher(t *testing.T, topics []topic.Topic, cb config.CircuitBreakerConfig, producer *recordingProducer) (*Dispatcher, *SubscriptionRegistry) {
	t.Helper()
	subs, err := NewSubscriptionRegistry(topics, cb)
	require.NoError(t, err)
	var opts []DispatcherOption
	opts = append(opts, WithAdvertisedHost("sim.local"))
	if producer == nil {
		return NewDispatcher(subs, NewWebhookSender(5*time.Second), nil, logger.NopLogger(), opts...), subs
	}
	return NewDispatcher(subs, NewWebhookSender(5*time.Second), producer, logger.NopLogger(), opts...), subs
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func event(id, eventType string) models.Event {
	return models.NewEventBuilder().
		WithID(id).
		WithSubject("orders/" + id).
		WithEventType(eventType).
		WithDataVersion("2.0").
		WithData(map[string]interface{}{"total": 10.0}).
		Build()
}

func descriptorFor(t topic.Topic) *admission.RequestDescriptor {
	return &admission.RequestDescriptor{Method: http.MethodPost, Path: "/api/events", Topic: t}
}

func TestDeliverNotification(t *testing.T) {
	wh := newWebhook(t)
	producer := &recordingProducer{}
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "audit", Endpoint: wh.URL, DisableValidation: true},
	}}
	d, _ := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, producer)

	reply, err := d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("1", "Order.Created"), event("2", "Order.Created")})
	require.NoError(t, err)
	assert.Equal(t, admission.Reply{Status: http.StatusOK}, reply)

	closeDispatcher(t, d)

	got := wh.received()
	require.Len(t, got, 1)
	assert.Equal(t, "Notification", got[0].header.Get("aeg-event-type"))
	assert.Equal(t, "AUDIT", got[0].header.Get("aeg-subscription-name"))
	assert.Equal(t, "2.0", got[0].header.Get("aeg-data-version"))
	assert.Equal(t, "1", got[0].header.Get("aeg-metadata-version"))

	require.Len(t, got[0].events, 2)
	for _, evt := range got[0].events {
		assert.Equal(t, "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/eventGridSimulator/providers/Microsoft.EventGrid/topics/orders", evt.Topic)
		assert.Equal(t, "1", evt.MetadataVersion)
	}

	assert.Len(t, producer.events, 2)
	assert.True(t, producer.closed)
}

func TestDeliverNotificationDoesNotMutateInput(t *testing.T) {
	orders := topic.Topic{Name: "orders", Port: 60101}
	d, _ := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, nil)

	events := []models.Event{event("1", "Order.Created")}
	_, err := d.DeliverNotification(context.Background(), descriptorFor(orders), events)
	require.NoError(t, err)
	closeDispatcher(t, d)

	assert.Empty(t, events[0].Topic)
	assert.Empty(t, events[0].MetadataVersion)
}

func TestDeliverNotificationFilter(t *testing.T) {
	created := newWebhook(t)
	everything := newWebhook(t)
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "created", Endpoint: created.URL, DisableValidation: true, Filter: `eventType == "Order.Created"`},
		{Name: "everything", Endpoint: everything.URL, DisableValidation: true},
		{Name: "nothing", Endpoint: created.URL, DisableValidation: true, Filter: `eventType == "Order.Deleted"`},
	}}
	d, _ := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, nil)

	_, err := d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{
		event("1", "Order.Created"),
		event("2", "Order.Shipped"),
	})
	require.NoError(t, err)
	closeDispatcher(t, d)

	got := created.received()
	require.Len(t, got, 1)
	require.Len(t, got[0].events, 1)
	assert.Equal(t, "1", got[0].events[0].ID)

	all := everything.received()
	require.Len(t, all, 1)
	assert.Len(t, all[0].events, 2)
}

func TestUnvalidatedSubscriberReceivesNothing(t *testing.T) {
	wh := newWebhook(t)
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "pending", Endpoint: wh.URL},
	}}
	d, subs := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, nil)

	_, err := d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("1", "t")})
	require.NoError(t, err)

	pending := subs.Pending()
	require.Len(t, pending, 1)
	code := pending[0].ValidationCode.String()

	reply, err := d.AcknowledgeValidation(context.Background(), descriptorFor(orders), code)
	require.NoError(t, err)
	assert.Equal(t, admission.Reply{Status: http.StatusOK, Body: "Webhook successfully validated as a subscription endpoint."}, reply)
	assert.Empty(t, subs.Pending())

	_, err = d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("2", "t")})
	require.NoError(t, err)
	closeDispatcher(t, d)

	got := wh.received()
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].events[0].ID)
}

func TestAcknowledgeValidation(t *testing.T) {
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "a", Endpoint: "http://localhost:1/hook"},
	}}
	other := topic.Topic{Name: "other", Port: 60102}
	d, subs := newDispatcher(t, []topic.Topic{orders, other}, config.CircuitBreakerConfig{}, nil)
	code := subs.Pending()[0].ValidationCode

	tests := []struct {
		name  string
		topic topic.Topic
		code  string
		ok    bool
	}{
		{name: "unknown code", topic: orders, code: "2b0f1d0e-8f43-4a4e-9a43-2f1a3b1c0d00"},
		{name: "code of another topic", topic: other, code: code.String()},
		{name: "braced form", topic: orders, code: "{" + code.String() + "}", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := d.AcknowledgeValidation(context.Background(), descriptorFor(tt.topic), tt.code)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrValidationCode))
				assert.Equal(t, http.StatusBadRequest, apperrors.ToHTTPStatus(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, reply.Status)
		})
	}
}

func TestSendValidationEvents(t *testing.T) {
	echoing := newWebhook(t)
	echoing.respond = func(w http.ResponseWriter, events []models.Event) {
		var data models.SubscriptionValidationData
		_ = json.Unmarshal(events[0].Data, &data)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ValidationAcknowledgement{ValidationResponse: data.ValidationCode})
	}
	silent := newWebhook(t)

	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "echoing", Endpoint: echoing.URL},
		{Name: "silent", Endpoint: silent.URL},
		{Name: "disabled", Endpoint: silent.URL, DisableValidation: true},
	}}
	d, subs := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, nil)

	d.SendValidationEvents(context.Background())
	closeDispatcher(t, d)

	pending := subs.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "silent", pending[0].Name)

	got := silent.received()
	require.Len(t, got, 1, "validation disabled subscribers are not sent a validation event")
	assert.Equal(t, "SubscriptionValidation", got[0].header.Get("aeg-event-type"))

	require.Len(t, got[0].events, 1)
	evt := got[0].events[0]
	assert.Equal(t, models.EventTypeSubscriptionValidation, evt.EventType)

	var data models.SubscriptionValidationData
	require.NoError(t, json.Unmarshal(evt.Data, &data))
	assert.Equal(t, pending[0].ValidationCode.String(), data.ValidationCode)
	assert.Equal(t, "http://sim.local:60101/validate?id="+data.ValidationCode, data.ValidationURL)
}

func TestCircuitBreakerStopsDeliveries(t *testing.T) {
	failing := newWebhook(t)
	failing.respond = func(w http.ResponseWriter, _ []models.Event) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "flaky", Endpoint: failing.URL, DisableValidation: true},
	}}
	d, _ := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 1,
		Timeout:      time.Minute,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 4; i++ {
		_, err := d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("1", "t")})
		require.NoError(t, err)
		// Sequential deliveries so the breaker sees each result in order.
		d.wg.Wait()
	}
	require.NoError(t, d.Close(ctx))

	assert.Len(t, failing.received(), 2)
}

func TestDeliveryPanicIsRecovered(t *testing.T) {
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "a", Endpoint: "http://localhost:1", DisableValidation: true},
	}}
	subs, err := NewSubscriptionRegistry([]topic.Topic{orders}, config.CircuitBreakerConfig{})
	require.NoError(t, err)
	d := NewDispatcher(subs, panicSender{}, nil, logger.NopLogger())

	_, err = d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("1", "t")})
	require.NoError(t, err)
	closeDispatcher(t, d)
}

type panicSender struct{}

func (panicSender) Send(context.Context, string, http.Header, interface{}) ([]byte, error) {
	panic("boom")
}

func TestDeliveryRecordsClientSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	wh := newWebhook(t)
	wh.respond = func(w http.ResponseWriter, _ []models.Event) { w.WriteHeader(http.StatusInternalServerError) }
	orders := topic.Topic{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "audit", Endpoint: wh.URL, DisableValidation: true},
	}}
	d, _ := newDispatcher(t, []topic.Topic{orders}, config.CircuitBreakerConfig{}, nil)

	_, err := d.DeliverNotification(context.Background(), descriptorFor(orders), []models.Event{event("1", "Order.Created")})
	require.NoError(t, err)
	closeDispatcher(t, d)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "delivery.send", span.Name())
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("gridsim.subscriber", "audit"))
	assert.Contains(t, span.Attributes(), attribute.String("gridsim.event_type", models.EventTypeNotification))
}
