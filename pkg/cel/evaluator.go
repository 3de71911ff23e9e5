package cel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"gridsim/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("eventType", cel.StringType),
		cel.Variable("eventTime", cel.StringType),
		cel.Variable("dataVersion", cel.StringType),
		cel.Variable("data", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// Filter is a compiled boolean expression that can be evaluated against many
// events.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) String() string {
	return f.expression
}

func (f *Filter) Match(ctx context.Context, evt models.Event) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, eventVars(evt))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// EvaluateFilter compiles and runs expression in one step.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, evt models.Event) (bool, error) {
	filter, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return filter.Match(ctx, evt)
}

func eventVars(evt models.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":          evt.ID,
		"subject":     evt.Subject,
		"eventType":   evt.EventType,
		"eventTime":   evt.EventTime,
		"dataVersion": evt.DataVersion,
		"data":        decodeData(evt.Data),
	}
}

func decodeData(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return map[string]interface{}{}
	}
	return v
}
