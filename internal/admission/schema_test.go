package admission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

func validEvent(id string) models.Event {
	return models.NewEventBuilder().
		WithID(id).
		WithSubject("orders/" + id).
		WithEventType("Order.Created").
		WithEventTime("2024-05-01T10:00:00Z").
		WithDataVersion("1.0").
		WithData(map[string]interface{}{"total": 42}).
		Build()
}

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *models.Event)
		message string
	}{
		{name: "valid", mutate: func(e *models.Event) {}},
		{
			name:    "missing id",
			mutate:  func(e *models.Event) { e.ID = "" },
			message: "Required property 'id' was not set on the event at position 1.",
		},
		{
			name:    "blank event type",
			mutate:  func(e *models.Event) { e.EventType = "  " },
			message: "Required property 'eventType' was not set on event 'a' at position 1.",
		},
		{
			name:    "missing subject",
			mutate:  func(e *models.Event) { e.Subject = "" },
			message: "Required property 'subject' was not set on event 'a' at position 1.",
		},
		{
			name:    "missing event time",
			mutate:  func(e *models.Event) { e.EventTime = "" },
			message: "Required property 'eventTime' was not set on event 'a' at position 1.",
		},
		{
			name:    "unparseable event time",
			mutate:  func(e *models.Event) { e.EventTime = "not a date" },
			message: "The event time property 'eventTime' was not a valid date/time on event 'a' at position 1.",
		},
		{name: "metadata version one", mutate: func(e *models.Event) { e.MetadataVersion = "1" }},
		{
			name:    "metadata version two",
			mutate:  func(e *models.Event) { e.MetadataVersion = "2" },
			message: "Property 'metadataVersion' was found to be set to '2' on event 'a' at position 1, but was expected to either be null or be set to 1.",
		},
		{
			name:    "topic set",
			mutate:  func(e *models.Event) { e.Topic = "/subscriptions/x" },
			message: "Property 'topic' was found to be set to '/subscriptions/x' on event 'a' at position 1, but was expected to either be null/empty.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := validEvent("a")
			tt.mutate(&evt)

			err := ValidateEvent(1, evt)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrSchemaInvalid))
			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestValidateBatchStopsAtFirstInvalid(t *testing.T) {
	second := validEvent("b")
	second.Subject = ""
	third := validEvent("c")
	third.EventType = ""

	err := ValidateBatch([]models.Event{validEvent("a"), second, third})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "'subject'")
	assert.Contains(t, appErr.Message, "event 'b' at position 2")
	assert.NotContains(t, appErr.Message, "eventType")
	assert.Equal(t, 2, appErr.Details["position"])
}
