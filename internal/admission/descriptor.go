// Package admission is the inbound acceptance gate of a simulated topic. It
// classifies each request, authenticates the publisher, enforces size limits
// and validates the event batch before anything is handed to delivery.
package admission

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"gridsim/internal/topic"
)

type RequestKind int

const (
	Unsupported RequestKind = iota
	Notification
	ValidationHandshake
)

func (k RequestKind) String() string {
	switch k {
	case Notification:
		return "notification"
	case ValidationHandshake:
		return "validation"
	default:
		return "unsupported"
	}
}

// RequestDescriptor is everything the gate needs to know about one request.
// Body is read once by the transport and shared read-only by every stage.
type RequestDescriptor struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Topic  topic.Topic
}

// headerValues gathers the values of every header whose key matches name
// case-insensitively. Keys are visited in sorted order so the result does not
// depend on map iteration.
func headerValues(header http.Header, name string) []string {
	var values []string
	for _, key := range matchingKeys(header, name) {
		values = append(values, header[key]...)
	}
	return values
}

// queryValue reads a query parameter case-insensitively. When the parameter
// appears more than once, under any casing, the values are joined with a
// comma, so a repeated id never parses as a single code.
func queryValue(query url.Values, name string) (string, bool) {
	keys := matchingKeys(query, name)
	if len(keys) == 0 {
		return "", false
	}
	var values []string
	for _, key := range keys {
		values = append(values, query[key]...)
	}
	return strings.Join(values, ","), true
}

func matchingKeys[M ~map[string][]string](m M, name string) []string {
	var keys []string
	for key := range m {
		if strings.EqualFold(key, name) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
