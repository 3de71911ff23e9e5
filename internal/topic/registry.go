// Package topic holds the immutable table of simulated topics, keyed by the
// port each one listens on.
package topic

import (
	"fmt"
	"sort"
	"strings"

	"gridsim/internal/config"
)

type Topic struct {
	Name        string
	Port        int
	Key         string
	Subscribers []config.SubscriberConfig
}

// HasKey reports whether publishers must authenticate. A blank key leaves the
// topic open.
func (t Topic) HasKey() bool {
	return strings.TrimSpace(t.Key) != ""
}

// Registry is built once at startup and never mutated, so concurrent reads
// need no locking.
type Registry struct {
	byPort map[int]Topic
	ports  []int
}

func NewRegistry(topics []config.TopicConfig) (*Registry, error) {
	r := &Registry{
		byPort: make(map[int]Topic, len(topics)),
		ports:  make([]int, 0, len(topics)),
	}

	for _, tc := range topics {
		if existing, ok := r.byPort[tc.Port]; ok {
			return nil, fmt.Errorf("topics %s and %s share port %d", existing.Name, tc.Name, tc.Port)
		}
		subs := make([]config.SubscriberConfig, len(tc.Subscribers))
		copy(subs, tc.Subscribers)
		r.byPort[tc.Port] = Topic{
			Name:        tc.Name,
			Port:        tc.Port,
			Key:         tc.Key,
			Subscribers: subs,
		}
		r.ports = append(r.ports, tc.Port)
	}
	sort.Ints(r.ports)

	return r, nil
}

func (r *Registry) Lookup(port int) (Topic, bool) {
	t, ok := r.byPort[port]
	return t, ok
}

// All returns the topics ordered by port.
func (r *Registry) All() []Topic {
	out := make([]Topic, 0, len(r.ports))
	for _, p := range r.ports {
		out = append(out, r.byPort[p])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.ports)
}
