package admission

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"gridsim/internal/constants"
)

const jsonMediaType = "application/json"

// Classify decides which protocol operation a request is. It only looks at
// request metadata; the body is never inspected here.
func Classify(method, path string, query url.Values, header http.Header) RequestKind {
	if isNotification(method, path, header) {
		return Notification
	}
	if isValidationHandshake(method, path, query) {
		return ValidationHandshake
	}
	return Unsupported
}

func isNotification(method, path string, header http.Header) bool {
	if method != http.MethodPost {
		return false
	}
	if !strings.EqualFold(path, constants.NotificationPath) && !strings.EqualFold(path, constants.RootPath) {
		return false
	}
	for _, v := range headerValues(header, "Content-Type") {
		if strings.TrimSpace(v) != "" && strings.Contains(strings.ToLower(v), jsonMediaType) {
			return true
		}
	}
	return false
}

// isValidationHandshake also gates the id format, so a malformed code is an
// unsupported request rather than a failed handshake.
func isValidationHandshake(method, path string, query url.Values) bool {
	if method != http.MethodGet || !strings.EqualFold(path, constants.ValidationPath) {
		return false
	}
	id, ok := queryValue(query, constants.ValidationParam)
	if !ok {
		return false
	}
	_, ok = ParseValidationCode(id)
	return ok
}

// ParseValidationCode accepts a code as 32 hex digits, hyphenated, or
// hyphenated inside matching braces or parentheses. The urn:uuid: prefix is
// not a valid code.
func ParseValidationCode(id string) (uuid.UUID, bool) {
	switch len(id) {
	case 32, 36:
	case 38:
		open, closing := id[0], id[len(id)-1]
		if !(open == '{' && closing == '}') && !(open == '(' && closing == ')') {
			return uuid.Nil, false
		}
		id = id[1 : len(id)-1]
	default:
		return uuid.Nil, false
	}
	code, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, false
	}
	return code, true
}
