package delivery

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"gridsim/internal/admission"
	"gridsim/internal/config"
	"gridsim/internal/topic"
	"gridsim/pkg/cel"
	"gridsim/pkg/circuitbreaker"
	"gridsim/pkg/metrics"
)

// Subscriber is a webhook attached to a topic. Everything but the validated
// flag is fixed at startup.
type Subscriber struct {
	Topic             string
	TopicPort         int
	Name              string
	Endpoint          string
	DisableValidation bool
	ValidationCode    uuid.UUID

	filter  *cel.Filter
	breaker *circuitbreaker.Wrapper
}

// SubscriptionRegistry tracks which subscribers have completed the
// validation handshake.
type SubscriptionRegistry struct {
	mu        sync.RWMutex
	byTopic   map[string][]*Subscriber
	validated map[*Subscriber]bool
}

func NewSubscriptionRegistry(topics []topic.Topic, cbCfg config.CircuitBreakerConfig) (*SubscriptionRegistry, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	r := &SubscriptionRegistry{
		byTopic:   make(map[string][]*Subscriber, len(topics)),
		validated: make(map[*Subscriber]bool),
	}

	for _, t := range topics {
		subs := make([]*Subscriber, 0, len(t.Subscribers))
		for _, sc := range t.Subscribers {
			sub := &Subscriber{
				Topic:             t.Name,
				TopicPort:         t.Port,
				Name:              sc.Name,
				Endpoint:          sc.Endpoint,
				DisableValidation: sc.DisableValidation,
				ValidationCode:    uuid.New(),
			}

			if sc.Filter != "" {
				sub.filter, err = evaluator.CompileFilter(sc.Filter)
				if err != nil {
					return nil, fmt.Errorf("subscriber %s/%s: %w", t.Name, sc.Name, err)
				}
			}

			if cbCfg.Enabled {
				sub.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig(t.Name+"/"+sc.Name, cbCfg))
			}

			subs = append(subs, sub)
		}
		r.byTopic[t.Name] = subs
		metrics.SetSubscribersValidated(t.Name, countActive(subs, r.validated))
	}

	return r, nil
}

// Active returns the subscribers of a topic that may receive events.
func (r *SubscriptionRegistry) Active(topicName string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscriber
	for _, s := range r.byTopic[topicName] {
		if s.DisableValidation || r.validated[s] {
			out = append(out, s)
		}
	}
	return out
}

// Pending returns every subscriber, across topics, still waiting for its
// handshake.
func (r *SubscriptionRegistry) Pending() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscriber
	for _, subs := range r.byTopic {
		for _, s := range subs {
			if !s.DisableValidation && !r.validated[s] {
				out = append(out, s)
			}
		}
	}
	return out
}

// Validate marks the subscriber of topicName holding code as validated. The
// code may be in any form the handshake classifier accepts.
func (r *SubscriptionRegistry) Validate(topicName, code string) (*Subscriber, bool) {
	id, ok := admission.ParseValidationCode(code)
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byTopic[topicName] {
		if s.ValidationCode == id {
			r.validated[s] = true
			metrics.SetSubscribersValidated(topicName, countActive(r.byTopic[topicName], r.validated))
			return s, true
		}
	}
	return nil, false
}

func (r *SubscriptionRegistry) IsValidated(s *Subscriber) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validated[s]
}

func countActive(subs []*Subscriber, validated map[*Subscriber]bool) int {
	n := 0
	for _, s := range subs {
		if s.DisableValidation || validated[s] {
			n++
		}
	}
	return n
}
