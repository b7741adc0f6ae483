// Package script contains transformers whose logic is a user supplied
// script: JavaScript evaluated by goja and Go evaluated by yaegi.
//
// Both transformers receive the row through an explicit EvaluationContext
// on every call. With the "concurrent" property disabled, evaluation is
// serialized and the script may keep state between rows.
package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names shared by the scripting transformers
const (
	PropertyScript        = "script"
	PropertyOutputColumns = "output columns"
	PropertyOutputType    = "output type"
	PropertyTimeout       = "timeout"
	PropertyConcurrent    = "concurrent"
)

const defaultTimeout = 5 * time.Second

// Descriptors returns the descriptors of the scripting transformers
func Descriptors() []*component.Descriptor {
	return []*component.Descriptor{
		JavaScriptDescriptor(),
		GoDescriptor(),
	}
}

// EvaluationContext is the view of one row handed to a script
type EvaluationContext struct {
	RowID int64
	// Values holds the input values in input column order
	Values []interface{}
	// Row maps input column names to values
	Row map[string]interface{}
}

func newEvaluationContext(row data.InputRow, inputs []*data.Column) EvaluationContext {
	ec := EvaluationContext{
		RowID:  row.ID(),
		Values: make([]interface{}, len(inputs)),
		Row:    make(map[string]interface{}, len(inputs)),
	}
	for i, col := range inputs {
		v := row.Value(col)
		ec.Values[i] = v
		ec.Row[col.Name()] = v
	}
	return ec
}

// evaluator runs a compiled script against one row
type evaluator interface {
	Evaluate(ctx context.Context, ec EvaluationContext) (interface{}, error)
	Close() error
}

// lockedEvaluator serializes access to an evaluator whose script state is
// shared between rows
type lockedEvaluator struct {
	mu sync.Mutex
	evaluator
}

func (l *lockedEvaluator) Evaluate(ctx context.Context, ec EvaluationContext) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evaluator.Evaluate(ctx, ec)
}

func scriptProperties(extra ...component.PropertySpec) []component.PropertySpec {
	return append([]component.PropertySpec{
		{Name: PropertyScript, Type: component.PropertyString, Required: true},
		{Name: PropertyOutputColumns, Type: component.PropertyStringList, Default: []string{"script output"}},
		{Name: PropertyOutputType, Type: component.PropertyString, Default: string(data.TypeAny),
			Choices: []string{string(data.TypeString), string(data.TypeNumber), string(data.TypeBoolean), string(data.TypeDate), string(data.TypeAny)}},
		{Name: PropertyTimeout, Type: component.PropertyDuration, Default: defaultTimeout},
		{Name: PropertyConcurrent, Type: component.PropertyBool, Default: true},
	}, extra...)
}

// transformer holds what both scripting transformers share. The language
// specific part compiles the script and builds the evaluator.
type transformer struct {
	language   string
	name       string
	inputs     []*data.Column
	source     string
	outputs    []string
	outputType data.DataType
	timeout    time.Duration
	concurrent bool
	logger     *zap.Logger

	eval evaluator
}

func newTransformer(language string, cfg component.Config) transformer {
	return transformer{
		language:   language,
		name:       cfg.Name,
		inputs:     cfg.Inputs,
		source:     cfg.Properties.String(PropertyScript),
		outputs:    cfg.Properties.StringList(PropertyOutputColumns),
		outputType: data.DataType(cfg.Properties.String(PropertyOutputType)),
		timeout:    cfg.Properties.Duration(PropertyTimeout),
		concurrent: cfg.Properties.Bool(PropertyConcurrent),
		logger:     cfg.Logger,
	}
}

func (t *transformer) validate() error {
	if len(t.outputs) == 0 {
		return fmt.Errorf("%s transformer declares no output columns", t.language)
	}
	if t.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", t.timeout)
	}
	return nil
}

func (t *transformer) setEvaluator(e evaluator) {
	if !t.concurrent {
		e = &lockedEvaluator{evaluator: e}
	}
	t.eval = e
}

func (t *transformer) OutputColumns() []component.OutputColumn {
	out := make([]component.OutputColumn, len(t.outputs))
	for i, name := range t.outputs {
		out[i] = component.OutputColumn{Name: name, DataType: t.outputType}
	}
	return out
}

func (t *transformer) Transform(row data.InputRow) ([]interface{}, error) {
	if t.eval == nil {
		return nil, fmt.Errorf("%s transformer %s is not initialized", t.language, t.name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	v, err := t.eval.Evaluate(ctx, newEvaluationContext(row, t.inputs))
	if err != nil {
		return nil, err
	}
	return t.spread(v)
}

// spread maps a script result onto the output columns. A single output
// takes the value as is, several outputs expect a list.
func (t *transformer) spread(v interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(t.outputs))
	if len(t.outputs) == 1 {
		out[0] = t.coerce(v)
		return out, nil
	}
	if v == nil {
		return out, nil
	}
	list, err := cast.ToSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("%s transformer with %d output columns must return a list, got %T", t.language, len(t.outputs), v)
	}
	for i := range out {
		if i < len(list) {
			out[i] = t.coerce(list[i])
		}
	}
	return out, nil
}

func (t *transformer) coerce(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	var (
		out interface{}
		err error
	)
	switch t.outputType {
	case data.TypeString:
		out, err = cast.ToStringE(v)
	case data.TypeNumber:
		out, err = cast.ToFloat64E(v)
	case data.TypeBoolean:
		out, err = cast.ToBoolE(v)
	case data.TypeDate:
		out, err = cast.ToTimeE(v)
	default:
		return v
	}
	if err != nil {
		t.logger.Debug("Script output does not convert to the declared type",
			zap.String("component", t.name),
			zap.String("type", string(t.outputType)),
			zap.Error(err))
		return nil
	}
	return out
}

func (t *transformer) Close() error {
	if t.eval == nil {
		return nil
	}
	err := t.eval.Close()
	t.eval = nil
	return err
}
