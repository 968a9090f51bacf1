// Package script compiles and executes user-authored constraint scripts in a
// sandbox. Constraints run against a context exposing the validated element,
// its model and metamodel, plus a small whitelisted helper surface; nothing a
// script does can raise past the validator's public boundary.
package script

import "context"

// Engine compiles and evaluates constraint code in one scripting dialect.
// Four implementations: Starlark (full statements), Expr and CEL (boolean
// expressions), GoJQ (queries over the JSON-shaped context).
type Engine interface {
	Name() string

	// Check compiles code without executing it, returning the compile error
	// if any. Used by the syntax probe.
	Check(code string) error

	// Evaluate runs code with the sandbox env available as free variables.
	Evaluate(ctx context.Context, code string, env map[string]any) (any, error)
}

// LookupFunc is a model-access helper exposed to scripts (findElementById,
// findElementsByType). Engines that can host Go callables wrap it natively;
// data-only engines drop it from their environment.
type LookupFunc func(arg string) any
