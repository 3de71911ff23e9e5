package admission

import (
	"gridsim/internal/constants"
	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

type SizeLimits struct {
	MaxPayloadBytes int
	MaxEventBytes   int
}

func DefaultSizeLimits() SizeLimits {
	return SizeLimits{
		MaxPayloadBytes: constants.MaxPayloadBytes,
		MaxEventBytes:   constants.MaxEventBytes,
	}
}

// CheckPayload bounds the raw body, before anything is decoded.
func (l SizeLimits) CheckPayload(body []byte) error {
	if len(body) > l.MaxPayloadBytes {
		return apperrors.ErrPayloadTooLarge
	}
	return nil
}

// CheckEvents stops at the first event over the per-event limit.
func (l SizeLimits) CheckEvents(events []models.Event) error {
	for i := range events {
		size, err := CanonicalSize(events[i])
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDecodeFailure)
		}
		if size > l.MaxEventBytes {
			return apperrors.ErrEventTooLarge.WithDetail("position", i+1).WithDetail("size", size)
		}
	}
	return nil
}
