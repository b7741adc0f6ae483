package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

var errPoolClosed = errors.New("runtime pool is closed")

// PoolConfig bounds the runtimes kept by a JavaScript transformer
type PoolConfig struct {
	// MaxSize is the maximum number of runtimes alive at once
	MaxSize int
	// MaxReuseCount replaces a runtime after this many evaluations so that
	// garbage left in script globals does not accumulate forever
	MaxReuseCount int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxSize: 16, MaxReuseCount: 10000}
}

// jsRuntime is a sandboxed runtime with the row function instantiated
type jsRuntime struct {
	vm   *goja.Runtime
	fn   goja.Callable
	uses int
}

// runtimePool lends runtimes to concurrent evaluations. A token in busy
// stands for a lent runtime, so at most MaxSize are alive at once; idle
// runtimes are reused before new ones are compiled.
type runtimePool struct {
	program  *goja.Program
	maxReuse int
	busy     chan struct{}

	mu     sync.Mutex
	idle   []*jsRuntime
	closed bool

	created  atomic.Int64
	acquired atomic.Int64
}

// newRuntimePool instantiates the first runtime right away so that a
// script failing at load time fails initialization
func newRuntimePool(program *goja.Program, cfg PoolConfig) (*runtimePool, error) {
	def := DefaultPoolConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxReuseCount <= 0 {
		cfg.MaxReuseCount = def.MaxReuseCount
	}
	p := &runtimePool{
		program:  program,
		maxReuse: cfg.MaxReuseCount,
		busy:     make(chan struct{}, cfg.MaxSize),
	}
	rt, err := p.instantiate()
	if err != nil {
		return nil, err
	}
	p.idle = append(p.idle, rt)
	return p, nil
}

func (p *runtimePool) instantiate() (*jsRuntime, error) {
	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, fmt.Errorf("sandbox runtime: %w", err)
	}
	v, err := vm.RunProgram(p.program)
	if err != nil {
		return nil, parseException(err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script does not evaluate to a function")
	}
	p.created.Add(1)
	return &jsRuntime{vm: vm, fn: fn}, nil
}

// Acquire lends a runtime, waiting while MaxSize runtimes are lent
func (p *runtimePool) Acquire(ctx context.Context) (*jsRuntime, error) {
	select {
	case p.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.acquired.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.busy
		return nil, errPoolClosed
	}
	var rt *jsRuntime
	if n := len(p.idle); n > 0 {
		rt = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if rt != nil && rt.uses < p.maxReuse {
		rt.uses++
		return rt, nil
	}
	rt, err := p.instantiate()
	if err != nil {
		<-p.busy
		return nil, err
	}
	rt.uses = 1
	return rt, nil
}

// Release returns a lent runtime. A discarded runtime, one that was
// interrupted or panicked, is not reused since its state is unknown.
func (p *runtimePool) Release(rt *jsRuntime, discard bool) {
	p.mu.Lock()
	if !discard && !p.closed {
		p.idle = append(p.idle, rt)
	}
	p.mu.Unlock()
	<-p.busy
}

// Close drops the idle runtimes; lent ones are dropped on release
func (p *runtimePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.idle = nil
	return nil
}

// PoolStats describes the runtimes of a transformer
type PoolStats struct {
	MaxSize  int
	Lent     int
	Idle     int
	Created  int64
	Acquired int64
}

func (p *runtimePool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return PoolStats{
		MaxSize:  cap(p.busy),
		Lent:     len(p.busy),
		Idle:     idle,
		Created:  p.created.Load(),
		Acquired: p.acquired.Load(),
	}
}
