package script

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// ExprEngine executes expression-only constraints with expr-lang/expr. It
// covers boolean predicates with array operations (filter, map, any, all),
// nil coalescing and optional chaining, but no statements; constraints that
// need if/for/return belong to the Starlark engine.
// Thread-safe: compiled *vm.Program objects are cached and reused.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr constraint engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Check compiles code without executing it.
func (e *ExprEngine) Check(code string) error {
	_, err := e.getOrCompile(code)
	return err
}

// Evaluate compiles (or retrieves from cache) the constraint and evaluates
// it against the sandbox env, whose keys become top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr constraint")
	}

	prg, err := e.getOrCompile(code)
	if err != nil {
		return nil, err
	}

	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptRuntime,
			"expr evaluation failed for %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a
// new one. Sandbox names are resolved at run time, so compilation allows
// undefined variables, matching the syntax-probe contract.
func (e *ExprEngine) getOrCompile(code string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[code]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[code]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(code,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptSyntax,
			"expr compile error in %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	e.cache[code] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
