package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// CELEngine executes expression-only constraints with Google's Common
// Expression Language. The environment exposes the sandbox context as four
// typed top-level variables:
//   - self:      map(string, dyn) — the validated element's attribute view
//   - model:     map(string, dyn) — id/name/flattened element list
//   - metamodel: map(string, dyn) — id/name
//   - elements:  map(string, dyn) — sanitized element name -> element view
//
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL constraint engine with a sandboxed
// environment.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("self", mapType),
		cel.Variable("model", mapType),
		cel.Variable("metamodel", mapType),
		cel.Variable("elements", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Check compiles code without executing it.
func (e *CELEngine) Check(code string) error {
	_, err := e.getOrCompile(code)
	return err
}

// Evaluate compiles (or retrieves from cache) a CEL constraint and evaluates
// it against the sandbox env. Missing activation keys default to empty maps
// to avoid CEL runtime nil-ref errors.
func (e *CELEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL constraint")
	}

	prg, err := e.getOrCompile(code)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(buildActivation(env))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptRuntime,
			"CEL evaluation failed for %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(code string) (cel.Program, error) {
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

	ast, issues := e.env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptSyntax,
			"CEL compile error in %q: %s", code, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": code})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptSyntax,
			"CEL program error for %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	e.cache[code] = prg
	return prg, nil
}

// buildActivation creates the evaluation activation from the sandbox env.
// Only the declared top-level variables are passed through; element name
// bindings are grouped under "elements" by the sandbox builder.
func buildActivation(env map[string]any) map[string]any {
	activation := make(map[string]any, 4)
	for _, key := range []string{"self", "model", "metamodel", "elements"} {
		if v, ok := env[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = map[string]any{}
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
