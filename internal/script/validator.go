package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// DefaultTimeout bounds a single constraint evaluation. A timeout resolves
// to a failing outcome, never an error.
const DefaultTimeout = time.Second

// Outcome is the tagged result of one constraint evaluation.
type Outcome struct {
	Passed  bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Pass returns a passing outcome.
func Pass() Outcome {
	return Outcome{Passed: true}
}

// Fail returns a failing outcome with a message.
func Fail(message string) Outcome {
	return Outcome{Passed: false, Message: message}
}

// SyntaxResult is the outcome of the compile-only syntax probe.
type SyntaxResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// Validator compiles and executes script constraints against model elements.
// It owns one engine per dialect and guarantees the "never raises" contract:
// compile failures become SyntaxResults, runtime failures (including panics
// and timeouts) become failing Outcomes.
type Validator struct {
	engines map[string]Engine
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout overrides the per-evaluation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// NewValidator creates a Validator with all four engines registered.
// A nil logger defaults to slog.Default().
func NewValidator(logger *slog.Logger, opts ...Option) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	v := &Validator{
		engines: map[string]Engine{},
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, e := range []Engine{NewStarlarkEngine(), NewExprEngine(), celEngine, NewGoJQEngine()} {
		v.engines[e.Name()] = e
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// engineFor resolves the engine for a constraint language, defaulting to
// Starlark.
func (v *Validator) engineFor(language string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(language))
	if name == "" {
		name = "starlark"
	}
	engine, ok := v.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown constraint language %q", name)
	}
	return engine, nil
}

// ValidateSyntax compile-probes code in the given dialect without executing
// it. Compile errors come back as human-readable issues; an unexpected
// end-of-input is normalized into a hint about unbalanced brackets/quotes.
func (v *Validator) ValidateSyntax(language, code string) SyntaxResult {
	if strings.TrimSpace(code) == "" {
		return SyntaxResult{Valid: false, Issues: []string{"constraint expression is empty"}}
	}

	engine, err := v.engineFor(language)
	if err != nil {
		return SyntaxResult{Valid: false, Issues: []string{err.Error()}}
	}

	if err := engine.Check(code); err != nil {
		return SyntaxResult{Valid: false, Issues: []string{readableSyntaxError(err)}}
	}
	return SyntaxResult{Valid: true}
}

// Evaluate runs one constraint against one element and interprets the
// result. Every failure mode — compile error, runtime error, panic, timeout,
// unexpected return value — converts to a failing Outcome; this method never
// returns an error and never panics.
func (v *Validator) Evaluate(ctx context.Context, constraint *schema.ScriptConstraint, element *schema.ModelElement, model *schema.Model, metamodel *schema.Metamodel) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("constraint evaluation panicked",
				slog.String("constraint_id", constraint.ID),
				slog.Any("panic", r))
			outcome = Fail(fmt.Sprintf("constraint %q crashed: %v", constraint.Name, r))
		}
	}()

	engine, err := v.engineFor(constraint.Language)
	if err != nil {
		return Fail(err.Error())
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	env := BuildSandbox(element, model, metamodel)

	result, err := engine.Evaluate(ctx, constraint.Expression, env)
	if err != nil {
		if ctx.Err() != nil {
			v.logger.Warn("constraint evaluation timed out",
				slog.String("constraint_id", constraint.ID),
				slog.Duration("timeout", v.timeout))
			return Fail(fmt.Sprintf("constraint %q timed out after %s", constraint.Name, v.timeout))
		}
		v.logger.Warn("constraint evaluation failed",
			slog.String("constraint_id", constraint.ID),
			slog.String("engine", engine.Name()),
			slog.String("error", err.Error()))
		return Fail(fmt.Sprintf("constraint %q failed to execute: %s", constraint.Name, rootMessage(err)))
	}

	return interpretResult(result)
}

// interpretResult maps a script's return value to an Outcome:
// true or none passes, false fails with the generic message, a dict carrying
// a "valid" boolean passes or fails with its message, and anything else
// fails with a diagnostic naming the value.
func interpretResult(result any) Outcome {
	switch val := result.(type) {
	case nil:
		return Pass()
	case bool:
		if val {
			return Pass()
		}
		return Fail("Constraint failed")
	case map[string]any:
		valid, ok := val["valid"].(bool)
		if !ok {
			return Fail(fmt.Sprintf("constraint returned an object without a boolean 'valid' field: %v", val))
		}
		if valid {
			return Pass()
		}
		if msg, ok := val["message"].(string); ok && msg != "" {
			return Fail(msg)
		}
		return Fail("Constraint failed")
	default:
		return Fail(fmt.Sprintf("constraint returned unexpected value %v (%T); expected a boolean or a result object", val, val))
	}
}

// readableSyntaxError turns a compile error into an authoring hint.
func readableSyntaxError(err error) string {
	msg := rootMessage(err)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "unexpected eof") ||
		strings.Contains(lower, "unexpected end") ||
		strings.Contains(lower, "end of file") ||
		strings.Contains(lower, "newline") {
		return "incomplete expression: check for unbalanced brackets, parentheses or quotes"
	}
	return msg
}

// rootMessage unwraps the structured error decoration down to the message.
func rootMessage(err error) string {
	var me *schema.ModelError
	if errors.As(err, &me) {
		return me.Message
	}
	return err.Error()
}
