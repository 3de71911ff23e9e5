package admission

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

// batchCodec never HTML-escapes so that re-encoded events stay at their
// most compact size.
var batchCodec = jsoniter.Config{
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// DecodeBatch reads the body as an ordered JSON array of events.
func DecodeBatch(body []byte) ([]models.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, apperrors.ErrDecodeFailure.WithCause(fmt.Errorf("body is not a JSON array"))
	}

	var events []models.Event
	if err := batchCodec.Unmarshal(trimmed, &events); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecodeFailure)
	}
	return events, nil
}

// CanonicalSize is the byte length of the event re-encoded without any
// insignificant whitespace, including inside its data payload.
func CanonicalSize(evt models.Event) (int, error) {
	raw, err := batchCodec.Marshal(evt)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
