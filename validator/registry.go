// Package validator implements the restricted expression sandbox that
// evaluates a job's validator string against its probe results: the
// builtin allow-list, a registry for user-supplied validator functions,
// and the two-phase evaluation (syntax check at config-load time, real
// evaluation once results are in) described by the job lifecycle engine.
package validator

import (
	"fmt"
	"sync"

	"github.com/hzhu212/data-monitor/internal/exprlang"
)

// Registry holds user-registered validator functions. It is populated
// once during startup and treated as read-only afterward, mirroring the
// filter registry's lifecycle.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]exprlang.Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]exprlang.Func{}}
}

// Register binds name to fn. Registering the same name twice overwrites
// the previous binding; callers are expected to do this only at startup.
func (r *Registry) Register(name string, fn exprlang.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) lookup(name string) (exprlang.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// env combines the builtin allow-list, the registry, and a single
// "result" binding into one exprlang.Env.
type env struct {
	registry  *Registry
	result    any
	hasResult bool
}

func (e env) Get(name string) (any, bool) {
	if name == "result" && e.hasResult {
		return e.result, true
	}
	if fn, ok := e.registry.lookup(name); ok {
		return exprlang.Func(fn), true
	}
	if v, ok := builtins[name]; ok {
		return v, true
	}
	return nil, false
}

// NewDefaultRegistry returns a Registry pre-populated with the reference
// validator functions shipped by the original monitoring tool: the
// predicate combinators (gt/ge/lt/le/eq/ne, ands/ors) and the claim/diff
// aggregate validators.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	registerPredicates(r)
	registerAggregates(r)
	return r
}

var errWrongArgCount = fmt.Errorf("wrong number of arguments")
