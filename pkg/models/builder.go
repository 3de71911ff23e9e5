package models

import (
	"encoding/json"
	"time"
)

type EventBuilder struct {
	event *Event
}

func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: &Event{},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	return b
}

func (b *EventBuilder) WithSubject(subject string) *EventBuilder {
	b.event.Subject = subject
	return b
}

func (b *EventBuilder) WithEventType(eventType string) *EventBuilder {
	b.event.EventType = eventType
	return b
}

func (b *EventBuilder) WithEventTime(eventTime string) *EventBuilder {
	b.event.EventTime = eventTime
	return b
}

func (b *EventBuilder) WithData(data interface{}) *EventBuilder {
	raw, err := json.Marshal(data)
	if err == nil {
		b.event.Data = raw
	}
	return b
}

func (b *EventBuilder) WithDataVersion(version string) *EventBuilder {
	b.event.DataVersion = version
	return b
}

func (b *EventBuilder) WithTopic(topic string) *EventBuilder {
	b.event.Topic = topic
	return b
}

func (b *EventBuilder) WithMetadataVersion(version string) *EventBuilder {
	b.event.MetadataVersion = version
	return b
}

// Build fills in an event time when none was set.
func (b *EventBuilder) Build() Event {
	if b.event.EventTime == "" {
		b.event.EventTime = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return *b.event
}
