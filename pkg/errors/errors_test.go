package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithMessageKeepsIdentity(t *testing.T) {
	err := ErrSchemaInvalid.WithMessage("Required property 'subject' was not set.")

	assert.True(t, errors.Is(err, ErrSchemaInvalid))
	assert.False(t, errors.Is(err, ErrDecodeFailure))
	assert.Equal(t, "The event was not valid.", ErrSchemaInvalid.Message)
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(err))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unsupported", err: ErrUnsupported, want: http.StatusBadRequest},
		{name: "credential", err: ErrCredentialInvalid, want: http.StatusUnauthorized},
		{name: "payload", err: ErrPayloadTooLarge, want: http.StatusRequestEntityTooLarge},
		{name: "wrapped", err: fmt.Errorf("outer: %w", ErrEventTooLarge), want: http.StatusRequestEntityTooLarge},
		{name: "foreign", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.err))
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrEventTooLarge)
	assert.Equal(t, "RequestEntityTooLarge", resp.Error.Code)
	assert.Equal(t, "Event is larger than the allowed maximum.", resp.Error.Message)

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "InternalServerError", resp.Error.Code)
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrUnsupported.WithDetail("path", "/nope")
	assert.Empty(t, ErrUnsupported.Details)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrDecodeFailure))

	cause := fmt.Errorf("unexpected end of JSON input")
	err := Wrap(cause, ErrDecodeFailure)

	assert.True(t, errors.Is(err, ErrDecodeFailure))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, ErrDecodeFailure.Cause)
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(err))
}
