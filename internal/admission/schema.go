package admission

import (
	"fmt"
	"strings"

	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

// ValidateBatch checks events in order and reports only the first invalid one.
func ValidateBatch(events []models.Event) error {
	for i := range events {
		if err := ValidateEvent(i+1, events[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEvent checks one event; position is 1-based and used to name the
// event in the failure message alongside its id.
func ValidateEvent(position int, evt models.Event) error {
	which := describeEvent(position, evt.ID)

	required := []struct {
		name  string
		value string
	}{
		{"id", evt.ID},
		{"eventType", evt.EventType},
		{"subject", evt.Subject},
		{"eventTime", evt.EventTime},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return schemaError(position, field.name,
				fmt.Sprintf("Required property '%s' was not set on %s.", field.name, which))
		}
	}

	if _, ok := models.ParseEventTime(evt.EventTime); !ok {
		return schemaError(position, "eventTime",
			fmt.Sprintf("The event time property 'eventTime' was not a valid date/time on %s.", which))
	}

	if evt.MetadataVersion != "" && evt.MetadataVersion != models.MetadataVersion {
		return schemaError(position, "metadataVersion",
			fmt.Sprintf("Property 'metadataVersion' was found to be set to '%s' on %s, but was expected to either be null or be set to 1.",
				evt.MetadataVersion, which))
	}

	if strings.TrimSpace(evt.Topic) != "" {
		return schemaError(position, "topic",
			fmt.Sprintf("Property 'topic' was found to be set to '%s' on %s, but was expected to either be null/empty.",
				evt.Topic, which))
	}

	return nil
}

func describeEvent(position int, id string) string {
	if strings.TrimSpace(id) == "" {
		return fmt.Sprintf("the event at position %d", position)
	}
	return fmt.Sprintf("event '%s' at position %d", id, position)
}

func schemaError(position int, field, message string) error {
	return apperrors.ErrSchemaInvalid.
		WithMessage(message).
		WithDetail("position", position).
		WithDetail("field", field)
}
