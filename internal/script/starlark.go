package script

import (
	"context"
	"regexp"
	"strings"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

const (
	constraintFile = "constraint.star"
	constraintFunc = "__constraint__"
)

// complexCodeRe detects statement-style constraints. Code using return, if
// or for is wrapped into a function body; everything else is evaluated as a
// single expression.
var complexCodeRe = regexp.MustCompile(`\b(return|if|for)\b`)

// StarlarkEngine executes constraints written in Starlark. It is the full
// scripting dialect of the sandbox: statement bodies with if/for/return are
// supported by wrapping the code into a generated function with an implicit
// trailing "return True". The environment is injected as predeclared names,
// never as mutable globals, and the whitelisted module surface is limited to
// math, json and time.
type StarlarkEngine struct {
	opts *syntax.FileOptions
}

// NewStarlarkEngine creates a Starlark constraint engine.
func NewStarlarkEngine() *StarlarkEngine {
	return &StarlarkEngine{opts: &syntax.FileOptions{}}
}

// Name returns the engine identifier.
func (e *StarlarkEngine) Name() string {
	return "starlark"
}

// Check compiles code without executing it: first as a multi-statement
// function body, then, on failure, as a single expression. Only a double
// failure is an error, and the body error is returned as the primary cause.
func (e *StarlarkEngine) Check(code string) error {
	_, bodyErr := e.opts.Parse(constraintFile, wrapBody(code), 0)
	if bodyErr == nil {
		return nil
	}
	if _, exprErr := e.opts.ParseExpr(constraintFile, code, 0); exprErr == nil {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeScriptSyntax, "%s", bodyErr.Error()).WithCause(bodyErr)
}

// Evaluate runs the constraint code with env exposed as predeclared names.
// Statement-style code is wrapped into a function and called; expression
// code is evaluated directly. Context cancellation cancels the Starlark
// thread, which surfaces as an evaluation error.
func (e *StarlarkEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	predeclared, err := toPredeclared(env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"cannot build sandbox environment: %s", err.Error()).WithCause(err)
	}

	thread := &starlark.Thread{
		Name:  constraintFile,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	if ctx != nil {
		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case <-ctx.Done():
				thread.Cancel(ctx.Err().Error())
			case <-watchDone:
			}
		}()
	}

	var out starlark.Value
	if complexCodeRe.MatchString(code) {
		globals, err := starlark.ExecFileOptions(e.opts, thread, constraintFile, wrapBody(code), predeclared)
		if err != nil {
			return nil, runtimeError(code, err)
		}
		fn, ok := globals[constraintFunc]
		if !ok {
			return nil, schema.NewError(schema.ErrCodeExecution, "constraint body did not compile to a callable")
		}
		out, err = starlark.Call(thread, fn, nil, nil)
		if err != nil {
			return nil, runtimeError(code, err)
		}
	} else {
		out, err = starlark.EvalOptions(e.opts, thread, constraintFile, code, predeclared)
		if err != nil {
			return nil, runtimeError(code, err)
		}
	}

	return starlarkToGo(out)
}

// wrapBody indents the code into a generated zero-argument function with an
// implicit trailing "return True", so bodies without an explicit return pass.
func wrapBody(code string) string {
	var b strings.Builder
	b.WriteString("def " + constraintFunc + "():\n")
	for _, line := range strings.Split(code, "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("    return True\n")
	return b.String()
}

func runtimeError(code string, err error) error {
	msg := err.Error()
	if evalErr, ok := err.(*starlark.EvalError); ok {
		msg = evalErr.Backtrace()
	}
	return schema.NewErrorf(schema.ErrCodeScriptRuntime,
		"constraint execution failed: %s", msg).
		WithCause(err).
		WithDetails(map[string]any{"expression": code})
}

// toPredeclared converts the sandbox env to Starlark predeclared names and
// attaches the whitelisted modules.
func toPredeclared(env map[string]any) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"math": starlarkmath.Module,
		"json": starlarkjson.Module,
		"time": starlarktime.Module,
	}
	for name, v := range env {
		sv, err := goToStarlark(name, v)
		if err != nil {
			return nil, err
		}
		predeclared[name] = sv
	}
	return predeclared, nil
}

// goToStarlark converts a Go value to a Starlark value. Maps become structs
// so scripts use attribute access (self.name), mirroring how the context
// objects read in the constraint editor. Helper funcs become builtins.
func goToStarlark(name string, v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case float32:
		return starlark.Float(float64(val)), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(name, item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := make(starlark.StringDict, len(val))
		for k, item := range val {
			sv, err := goToStarlark(k, item)
			if err != nil {
				return nil, err
			}
			dict[k] = sv
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, dict), nil
	case LookupFunc:
		return lookupBuiltin(name, val), nil
	default:
		// Unknown values are exposed by their string form rather than
		// rejected, keeping the sandbox build total.
		return starlark.String(stringify(val)), nil
	}
}

// lookupBuiltin wraps a model-access helper as a one-argument builtin.
func lookupBuiltin(name string, fn LookupFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var arg string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &arg); err != nil {
			return nil, err
		}
		return goToStarlark(b.Name(), fn(arg))
	})
}

// starlarkToGo converts a Starlark result back to plain Go values.
func starlarkToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		f, _ := starlark.AsFloat(val)
		return f, nil
	case *starlark.List:
		out := make([]any, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := starlarkToGo(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, 0, len(val))
		for _, item := range val {
			gv, err := starlarkToGo(item)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeExecution,
					"constraint returned a dict with non-string key %s", kv[0].String())
			}
			gv, err := starlarkToGo(kv[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = gv
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := make(map[string]any, len(val.AttrNames()))
		for _, attr := range val.AttrNames() {
			av, err := val.Attr(attr)
			if err != nil {
				continue
			}
			gv, err := starlarkToGo(av)
			if err != nil {
				return nil, err
			}
			out[attr] = gv
		}
		return out, nil
	default:
		return val.String(), nil
	}
}

var _ Engine = (*StarlarkEngine)(nil)
