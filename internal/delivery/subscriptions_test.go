package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/config"
	"gridsim/internal/topic"
)

func TestSubscriptionRegistry(t *testing.T) {
	topics := []topic.Topic{
		{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
			{Name: "open", Endpoint: "http://localhost:7000/a", DisableValidation: true},
			{Name: "pending", Endpoint: "http://localhost:7000/b"},
		}},
		{Name: "invoices", Port: 60102},
	}
	subs, err := NewSubscriptionRegistry(topics, config.CircuitBreakerConfig{Enabled: true})
	require.NoError(t, err)

	active := subs.Active("orders")
	require.Len(t, active, 1)
	assert.Equal(t, "open", active[0].Name)
	assert.NotNil(t, active[0].breaker)
	assert.Empty(t, subs.Active("invoices"))
	assert.Empty(t, subs.Active("missing"))

	pending := subs.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 60101, pending[0].TopicPort)
	assert.NotEqual(t, active[0].ValidationCode, pending[0].ValidationCode)

	_, ok := subs.Validate("orders", "not-a-uuid")
	assert.False(t, ok)

	sub, ok := subs.Validate("orders", pending[0].ValidationCode.String())
	require.True(t, ok)
	assert.True(t, subs.IsValidated(sub))
	assert.Len(t, subs.Active("orders"), 2)
	assert.Empty(t, subs.Pending())
}

func TestSubscriptionRegistryRejectsBadFilter(t *testing.T) {
	topics := []topic.Topic{{Name: "orders", Port: 60101, Subscribers: []config.SubscriberConfig{
		{Name: "broken", Endpoint: "http://localhost:7000", Filter: `eventType ==`},
	}}}

	_, err := NewSubscriptionRegistry(topics, config.CircuitBreakerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders/broken")
}
