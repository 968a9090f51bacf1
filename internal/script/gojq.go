package script

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// GoJQEngine executes jq-query constraints against the JSON-shaped sandbox
// context: `.self`, `.model` and `.elements` are the input object's keys.
// Useful for aggregation-style invariants (counting, grouping) that read
// awkwardly in the other dialects.
// Thread-safe: compiled *Code objects are cached and reused.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewGoJQEngine creates a new GoJQ constraint engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{cache: make(map[string]*gojq.Code)}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Check compiles code without executing it.
func (e *GoJQEngine) Check(code string) error {
	_, err := e.getOrCompile(code)
	return err
}

// Evaluate compiles (or retrieves from cache) a jq query and runs it with
// the sandbox env as the input object. Non-JSON env entries (helper funcs)
// are dropped first. When the query yields exactly one output it is returned
// directly; multiple outputs are collected into a slice.
func (e *GoJQEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq constraint")
	}

	compiled, err := e.getOrCompile(code)
	if err != nil {
		return nil, err
	}

	iter := compiled.RunWithContext(ctx, jsonOnly(env))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeScriptRuntime,
				"jq evaluation failed for %q: %s", code, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": code})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled query or compiles and caches a new one.
func (e *GoJQEngine) getOrCompile(code string) (*gojq.Code, error) {
	e.mu.RLock()
	if c, ok := e.cache[code]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if c, ok := e.cache[code]; ok {
		return c, nil
	}

	query, err := gojq.Parse(code)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptSyntax,
			"jq parse error in %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	compiled, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScriptSyntax,
			"jq compile error in %q: %s", code, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": code})
	}

	e.cache[code] = compiled
	return compiled, nil
}

// jsonOnly strips values jq cannot represent (helper funcs) and normalizes
// integer types to float64, matching jq's native number handling.
func jsonOnly(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		if _, isFn := v.(LookupFunc); isFn {
			continue
		}
		out[k] = normalizeJSON(v)
	}
	return out
}

// normalizeJSON converts Go native types to jq-compatible types.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, isFn := item.(LookupFunc); isFn {
				continue
			}
			out[k] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSON(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
