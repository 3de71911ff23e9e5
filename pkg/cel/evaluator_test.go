package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "valid equality", expr: `eventType == "Order.Created"`},
		{name: "valid data access", expr: `data.total > 100.0`},
		{name: "non bool is still an expression", expr: `subject.size()`},
		{name: "invalid syntax", expr: `invalid syntax here!!!`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "active"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "bool expression", expr: `subject.startsWith("orders/")`},
		{name: "non bool expression", expr: `subject`, wantError: true},
		{name: "unknown variable", expr: `source == "api"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	evt := models.NewEventBuilder().
		WithID("evt-1").
		WithSubject("orders/eu/42").
		WithEventType("Order.Created").
		WithDataVersion("1.0").
		WithData(map[string]interface{}{
			"total":    150.0,
			"customer": map[string]interface{}{"tier": "premium"},
		}).
		Build()

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "event type match", expr: `eventType == "Order.Created"`, want: true},
		{name: "event type mismatch", expr: `eventType == "Order.Deleted"`, want: false},
		{name: "subject prefix", expr: `subject.startsWith("orders/")`, want: true},
		{name: "data numeric", expr: `data.total > 100.0`, want: true},
		{name: "nested data", expr: `data.customer.tier == "premium"`, want: true},
		{name: "has missing field", expr: `has(data.missing)`, want: false},
		{name: "data version", expr: `dataVersion == "1.0"`, want: true},
		{name: "missing key errors", expr: `data.missing == "x"`, wantErr: true},
		{name: "compile error", expr: `eventType ==`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateFilter(context.Background(), tt.expr, evt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterWithoutData(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	filter, err := eval.CompileFilter(`has(data.total)`)
	require.NoError(t, err)
	assert.Equal(t, `has(data.total)`, filter.String())

	evt := models.NewEventBuilder().WithID("1").WithSubject("s").WithEventType("t").Build()
	match, err := filter.Match(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestFilterExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}
