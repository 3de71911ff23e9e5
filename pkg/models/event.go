package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is one entry of a published batch, in the Event Grid event schema.
// EventTime is kept as the raw string so that an unparseable timestamp is a
// schema failure rather than a decode failure.
type Event struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic,omitempty"`
	Subject         string          `json:"subject"`
	Data            json.RawMessage `json:"data,omitempty"`
	EventType       string          `json:"eventType"`
	EventTime       string          `json:"eventTime"`
	MetadataVersion string          `json:"metadataVersion,omitempty"`
	DataVersion     string          `json:"dataVersion,omitempty"`
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEventTime accepts RFC 3339 timestamps as well as the zone-less and
// date-only forms publishers commonly send.
func ParseEventTime(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// DataMap returns the event data as a map when it is a JSON object.
func (e *Event) DataMap() map[string]interface{} {
	if len(e.Data) == 0 {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(e.Data, &m); err != nil || m == nil {
		return map[string]interface{}{}
	}
	return m
}
