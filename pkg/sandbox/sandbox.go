// Package sandbox compiles and evaluates user-authored module logic.
//
// Logic is a CEL expression that sees exactly three variables, inputs, config
// and globals, each a map from string to dynamic value, and must evaluate to a
// map whose keys are output port ids:
//
//	{"result": inputs.value * 2.0}
//	{"tax": inputs.amount * globals.?taxRate.orValue(0.08)}
//
// Expressions cannot reach the network, the file system or any engine state.
// Numbers are handed to the expression as doubles.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

const (
	defaultCostLimit         = 1_000_000
	defaultInterruptInterval = 100
)

var (
	// ErrCompile indicates the source text is not a valid expression.
	ErrCompile = errors.New("logic does not compile")

	// ErrOutputNotMap indicates the expression does not produce a map.
	ErrOutputNotMap = errors.New("logic must evaluate to a map of output values")
)

var environment = sync.OnceValues(func() (*cel.Env, error) {
	argType := cel.MapType(cel.StringType, cel.DynType)

	return cel.NewEnv(
		cel.Variable("inputs", argType),
		cel.Variable("config", argType),
		cel.Variable("globals", argType),
		cel.OptionalTypes(),
		ext.Strings(),
		ext.Math(),
		ext.Lists(),
		ext.Encoders(),
	)
})

type options struct {
	costLimit         uint64
	interruptInterval uint
}

// Option configures a compiled script.
type Option func(*options)

// WithCostLimit bounds the evaluation cost of a script.
func WithCostLimit(limit uint64) Option {
	return func(o *options) {
		o.costLimit = limit
	}
}

// WithInterruptInterval sets how many comprehension iterations run between
// context cancellation checks.
func WithInterruptInterval(n uint) Option {
	return func(o *options) {
		o.interruptInterval = n
	}
}

// Script is compiled module logic. It implements models.Logic.
type Script struct {
	source  string
	program cel.Program
}

// Compile parses and type-checks source. Empty source compiles to a script
// that copies its inputs to its outputs.
func Compile(source string, opts ...Option) (*Script, error) {
	o := options{costLimit: defaultCostLimit, interruptInterval: defaultInterruptInterval}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(source) == "" {
		return &Script{source: source}, nil
	}

	env, err := environment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logic environment: %w", err)
	}

	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, issues.Err())
	}

	switch ast.OutputType().Kind() {
	case types.MapKind, types.DynKind:
	default:
		return nil, fmt.Errorf("%w: got %s", ErrOutputNotMap, ast.OutputType())
	}

	program, err := env.Program(ast,
		cel.CostLimit(o.costLimit),
		cel.InterruptCheckFrequency(o.interruptInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	return &Script{source: source, program: program}, nil
}

// Source returns the text the script was compiled from.
func (s *Script) Source() string {
	return s.source
}

// Execute evaluates the script.
func (s *Script) Execute(ctx context.Context, inputs, config, globals map[string]any) (map[string]any, error) {
	if s.program == nil {
		out, _ := normalizeInput(inputs).(map[string]any)

		return out, nil
	}

	val, _, err := s.program.ContextEval(ctx, map[string]any{
		"inputs":  normalizeInput(inputs),
		"config":  normalizeInput(config),
		"globals": normalizeInput(globals),
	})
	if err != nil {
		return nil, fmt.Errorf("logic evaluation failed: %w", err)
	}

	outputs, ok := normalizeOutput(val).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrOutputNotMap, val.Value())
	}

	return outputs, nil
}

// normalizeInput converts Go values into the JSON-like shapes the
// expressions are written against.
func normalizeInput(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}

		out := make(map[string]any, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalizeInput(iter.Value().Interface())
		}

		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}

		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = normalizeInput(rv.Index(i).Interface())
		}

		return out
	default:
		return v
	}
}

// normalizeOutput converts CEL values back to plain Go values. Integers
// become float64 so outputs keep JSON number semantics.
func normalizeOutput(v any) any {
	if rv, ok := v.(ref.Val); ok {
		if _, isNull := rv.(types.Null); isNull {
			return nil
		}

		return normalizeOutput(rv.Value())
	}

	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Map:
		out := make(map[string]any, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(normalizeOutput(iter.Key().Interface()))
			out[key] = normalizeOutput(iter.Value().Interface())
		}

		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}

		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = normalizeOutput(rv.Index(i).Interface())
		}

		return out
	default:
		return v
	}
}
