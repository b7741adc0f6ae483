package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/component"
)

// TransformFunc is the entry point a Go script provides
type TransformFunc = func(rowID int64, values []interface{}, row map[string]interface{}) (interface{}, error)

// GoTransformer interprets a Go function per row. The script is either
// the body of
//
//	func Transform(rowID int64, values []interface{}, row map[string]interface{}) (interface{}, error)
//
// or a complete `package main` source file declaring that function, which
// is needed to import packages of the standard library.
//
// A timed out evaluation is abandoned, not stopped.
type GoTransformer struct {
	transformer
}

func GoDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:           "Go transformer",
		Aliases:        []string{"Go"},
		Kind:           component.KindTransformer,
		Description:    "Derives values with an interpreted Go function.",
		MinInputs:      1,
		RowIDSensitive: true,
		Properties:     scriptProperties(),
		Create: func(cfg component.Config) (component.Component, error) {
			return &GoTransformer{transformer: newTransformer("Go", cfg)}, nil
		},
	}
}

func wrapGo(script string) string {
	if strings.HasPrefix(strings.TrimSpace(script), "package ") {
		return script
	}
	return fmt.Sprintf(`package main

func Transform(rowID int64, values []interface{}, row map[string]interface{}) (interface{}, error) {
%s
}
`, script)
}

func compileGo(script string) (TransformFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load standard library symbols: %w", err)
	}
	if _, err := i.Eval(wrapGo(script)); err != nil {
		return nil, &ScriptError{Type: ErrorTypeSyntax, Message: err.Error()}
	}
	v, err := i.Eval("Transform")
	if err != nil {
		return nil, fmt.Errorf("script has no Transform function: %w", err)
	}
	fn, ok := v.Interface().(TransformFunc)
	if !ok {
		return nil, fmt.Errorf("Transform must be a func(int64, []interface{}, map[string]interface{}) (interface{}, error), got %s", v.Type())
	}
	return fn, nil
}

// Validate interprets the script in a throwaway interpreter
func (t *GoTransformer) Validate() error {
	if err := t.validate(); err != nil {
		return err
	}
	if _, err := compileGo(t.source); err != nil {
		return fmt.Errorf("invalid Go script: %w", err)
	}
	return nil
}

func (t *GoTransformer) Initialize(ctx context.Context) error {
	fn, err := compileGo(t.source)
	if err != nil {
		return err
	}
	t.logger.Debug("Go script interpreted",
		zap.String("component", t.name),
		zap.Bool("concurrent", t.concurrent))
	t.setEvaluator(&goEvaluator{fn: fn, timeout: t.timeout})
	return nil
}

type goEvaluator struct {
	fn      TransformFunc
	timeout time.Duration
}

type goResult struct {
	value interface{}
	err   error
}

func (e *goEvaluator) Evaluate(ctx context.Context, ec EvaluationContext) (interface{}, error) {
	ch := make(chan goResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- goResult{err: &ScriptError{Type: ErrorTypeRuntime, Message: fmt.Sprint(r)}}
			}
		}()
		v, err := e.fn(ec.RowID, ec.Values, ec.Row)
		ch <- goResult{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if _, ok := r.err.(*ScriptError); ok {
				return nil, r.err
			}
			return nil, &ScriptError{Type: ErrorTypeRuntime, Message: r.err.Error()}
		}
		return r.value, nil
	case <-ctx.Done():
		return nil, newTimeoutError(e.timeout)
	}
}

func (e *goEvaluator) Close() error { return nil }
