package script

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/component"
)

// PropertyPoolSize bounds the runtimes of a concurrent JavaScript transformer
const PropertyPoolSize = "pool size"

// JavaScriptTransformer evaluates a JavaScript function body per row. The
// body sees the input values as `values` (input order), `row` (by column
// name) and `rowId`, and returns the output value or, for several output
// columns, an array.
//
//	var name = row.name;
//	return name ? name.length : null;
type JavaScriptTransformer struct {
	transformer
	poolSize int
	program  *goja.Program
}

func JavaScriptDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:           "JavaScript transformer",
		Aliases:        []string{"JavaScript"},
		Kind:           component.KindTransformer,
		Description:    "Derives values with a JavaScript function.",
		MinInputs:      1,
		RowIDSensitive: true,
		Properties: scriptProperties(
			component.PropertySpec{Name: PropertyPoolSize, Type: component.PropertyInt, Default: DefaultPoolConfig().MaxSize},
		),
		Create: func(cfg component.Config) (component.Component, error) {
			return &JavaScriptTransformer{
				transformer: newTransformer("JavaScript", cfg),
				poolSize:    cfg.Properties.Int(PropertyPoolSize),
			}, nil
		},
	}
}

func wrapJavaScript(body string) string {
	return "(function(values, row, rowId) {\n" + body + "\n})"
}

// Validate compiles the script
func (t *JavaScriptTransformer) Validate() error {
	if err := t.validate(); err != nil {
		return err
	}
	program, err := goja.Compile(t.name, wrapJavaScript(t.source), false)
	if err != nil {
		return fmt.Errorf("invalid JavaScript: %w", parseException(err))
	}
	t.program = program
	return nil
}

// Initialize creates the runtime pool. A serial transformer uses a single
// runtime for its whole life so script globals survive between rows.
func (t *JavaScriptTransformer) Initialize(ctx context.Context) error {
	if t.program == nil {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	cfg := PoolConfig{MaxSize: t.poolSize}
	if !t.concurrent {
		cfg = PoolConfig{MaxSize: 1, MaxReuseCount: math.MaxInt}
	}
	pool, err := newRuntimePool(t.program, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JavaScript runtime: %w", err)
	}
	t.logger.Debug("JavaScript runtime pool ready",
		zap.String("component", t.name),
		zap.Int("max_size", cfg.MaxSize),
		zap.Bool("concurrent", t.concurrent))
	t.setEvaluator(&jsEvaluator{pool: pool, timeout: t.timeout})
	return nil
}

type jsEvaluator struct {
	pool    *runtimePool
	timeout time.Duration
}

func (e *jsEvaluator) Evaluate(ctx context.Context, ec EvaluationContext) (result interface{}, err error) {
	vm, err := e.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newTimeoutError(e.timeout)
		}
		return nil, err
	}

	var interrupted atomic.Bool
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			interrupted.Store(true)
			vm.vm.Interrupt("execution timeout")
		case <-done:
		}
	}()

	defer func() {
		panicked := false
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic during execution: %v", r)
		}
		close(done)
		<-stopped
		e.pool.Release(vm, interrupted.Load() || panicked)
	}()

	v, err := vm.fn(goja.Undefined(), vm.vm.ToValue(ec.Values), vm.vm.ToValue(ec.Row), vm.vm.ToValue(ec.RowID))
	if err != nil {
		if interrupted.Load() {
			return nil, newTimeoutError(e.timeout)
		}
		return nil, parseException(err)
	}
	return v.Export(), nil
}

func (e *jsEvaluator) Close() error {
	return e.pool.Close()
}

// Stats reports the runtime pool of an initialized transformer
func (t *JavaScriptTransformer) Stats() (PoolStats, bool) {
	eval := t.eval
	if locked, ok := eval.(*lockedEvaluator); ok {
		eval = locked.evaluator
	}
	js, ok := eval.(*jsEvaluator)
	if !ok {
		return PoolStats{}, false
	}
	return js.pool.Stats(), true
}
