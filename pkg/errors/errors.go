package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Rejection kinds produced by the admission pipeline. Messages are part of the
// wire contract and are written to clients verbatim.
var (
	ErrUnsupported       = NewError("UNSUPPORTED", "Request not supported.", http.StatusBadRequest)
	ErrHandshakeMissing  = NewError("HANDSHAKE_MISSING", "The request did not contain a validation code.", http.StatusBadRequest)
	ErrCredentialInvalid = NewError("CREDENTIAL_INVALID", "The request did not contain a valid aeg-sas-key or aeg-sas-token.", http.StatusUnauthorized)
	ErrPayloadTooLarge   = NewError("PAYLOAD_TOO_LARGE", "Payload is larger than the allowed maximum.", http.StatusRequestEntityTooLarge)
	ErrEventTooLarge     = NewError("EVENT_TOO_LARGE", "Event is larger than the allowed maximum.", http.StatusRequestEntityTooLarge)
	ErrDecodeFailure     = NewError("DECODE_FAILURE", "The request body could not be read as an array of events.", http.StatusBadRequest)
	ErrSchemaInvalid     = NewError("SCHEMA_INVALID", "The event was not valid.", http.StatusBadRequest)
)

var (
	ErrValidationCode = NewError("VALIDATION_CODE_INVALID", "The validation code was not correct.", http.StatusBadRequest)
	ErrInternal       = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that copies made by the With* helpers still compare
// equal to their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

// Wrap attaches err as the cause of a copy of appErr. A nil err yields nil.
func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// StatusCode renders an HTTP status the way the emulated protocol names it in
// error bodies, e.g. 413 -> "RequestEntityTooLarge".
func StatusCode(status int) string {
	return strings.ReplaceAll(http.StatusText(status), " ", "")
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	return ErrorResponse{
		Error: ErrorBody{
			Code:    StatusCode(appErr.Status),
			Message: appErr.Message,
		},
	}
}
