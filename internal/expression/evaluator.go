package expression

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Evaluator is the tree-walking interpreter over Expression trees.
// It never panics or returns errors past its public surface: unresolved
// references and unsupported operators degrade to nil (logged), so one bad
// expression cannot abort a whole transformation or validation pass.
type Evaluator struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil resolver or logger falls back to
// defaults.
func NewEvaluator(resolver *Resolver, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(logger)
	}
	return &Evaluator{resolver: resolver, logger: logger}
}

// Evaluate computes the value of expr against ctx. The result is a raw
// string, float64, bool or nil.
func (ev *Evaluator) Evaluate(expr *schema.Expression, ctx *schema.EvaluationContext) any {
	if expr == nil {
		return nil
	}
	switch expr.Type {
	case schema.ExpressionLiteral:
		return expr.Value
	case schema.ExpressionReference:
		// Only the first reference is resolved. Multi-reference nodes keep
		// the full list for display and dependency tracking, but evaluation
		// intentionally uses references[0].
		if len(expr.References) == 0 {
			return nil
		}
		ref := expr.References[0]
		return ev.resolver.Resolve(ref.ElementName, ref.AttributeName, ctx)
	case schema.ExpressionOperation:
		return ev.evaluateOperation(expr, ctx)
	case schema.ExpressionCompound:
		return ev.evaluateCompound(expr, ctx)
	}
	ev.logger.Warn("unknown expression type", slog.String("type", string(expr.Type)))
	return nil
}

func (ev *Evaluator) evaluateOperation(expr *schema.Expression, ctx *schema.EvaluationContext) any {
	left := ev.evaluateOperand(expr.LeftOperand, ctx)
	right := ev.evaluateOperand(expr.RightOperand, ctx)

	switch expr.Operator {
	case schema.OpIncrement:
		if ln, lok := toNumber(left); lok {
			if rn, rok := toNumber(right); rok {
				return ln + rn
			}
		}
		// Weak-typed addition concatenates when either side is non-numeric.
		return formatLiteral(left) + formatLiteral(right)
	case schema.OpDecrement, schema.OpMultiply, schema.OpDivide:
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			ev.logger.Warn("non-numeric operand for arithmetic operator",
				slog.String("operator", string(expr.Operator)),
				slog.Any("left", left), slog.Any("right", right))
			return nil
		}
		switch expr.Operator {
		case schema.OpDecrement:
			return ln - rn
		case schema.OpMultiply:
			return ln * rn
		default:
			return ln / rn
		}
	case schema.OpEquals:
		return looseEquals(left, right)
	case schema.OpNotEquals:
		return !looseEquals(left, right)
	case schema.OpGreaterThan, schema.OpLessThan, schema.OpGreaterOrEquals, schema.OpLessOrEquals:
		return compareOrdered(expr.Operator, left, right)
	}

	ev.logger.Warn("unsupported operator", slog.String("operator", string(expr.Operator)))
	return nil
}

// evaluateOperand evaluates an operation operand, reinterpreting a literal of
// the form identifier.identifier as an implicit reference first. This is an
// authoring convenience: "Place.tokens" typed into an operand slot resolves
// like a reference even though it parsed as a literal.
func (ev *Evaluator) evaluateOperand(operand *schema.Expression, ctx *schema.EvaluationContext) any {
	if operand == nil {
		return nil
	}
	if operand.Type == schema.ExpressionLiteral {
		if s, ok := operand.Value.(string); ok {
			if m := dottedRefRe.FindStringSubmatch(s); m != nil {
				return ev.resolver.Resolve(m[1], m[2], ctx)
			}
		}
	}
	return ev.Evaluate(operand, ctx)
}

func (ev *Evaluator) evaluateCompound(expr *schema.Expression, ctx *schema.EvaluationContext) any {
	// A missing operand degenerates to the other operand's value.
	if expr.Operator != schema.OpNot {
		if expr.LeftOperand == nil && expr.RightOperand != nil {
			return ev.Evaluate(expr.RightOperand, ctx)
		}
		if expr.RightOperand == nil && expr.LeftOperand != nil {
			return ev.Evaluate(expr.LeftOperand, ctx)
		}
	}

	switch expr.Operator {
	case schema.OpAnd:
		// Short-circuit: the right operand is never evaluated when the left
		// is falsy, so an unresolvable reference there stays silent.
		if !truthy(ev.Evaluate(expr.LeftOperand, ctx)) {
			return false
		}
		return truthy(ev.Evaluate(expr.RightOperand, ctx))
	case schema.OpOr:
		if truthy(ev.Evaluate(expr.LeftOperand, ctx)) {
			return true
		}
		return truthy(ev.Evaluate(expr.RightOperand, ctx))
	case schema.OpNot:
		return !truthy(ev.Evaluate(expr.LeftOperand, ctx))
	}

	ev.logger.Warn("unsupported compound operator", slog.String("operator", string(expr.Operator)))
	return nil
}

// toNumber coerces numeric values and numeric-looking strings to float64.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// looseEquals implements weak-typed equality: numeric comparison when both
// sides coerce to numbers, boolean/string folding otherwise.
func looseEquals(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
	}
	return formatLiteral(a) == formatLiteral(b)
}

// compareOrdered applies an ordering comparison, numerically when possible,
// lexicographically otherwise.
func compareOrdered(op schema.Operator, a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		switch op {
		case schema.OpGreaterThan:
			return an > bn
		case schema.OpLessThan:
			return an < bn
		case schema.OpGreaterOrEquals:
			return an >= bn
		default:
			return an <= bn
		}
	}
	as, bs := formatLiteral(a), formatLiteral(b)
	switch op {
	case schema.OpGreaterThan:
		return as > bs
	case schema.OpLessThan:
		return as < bs
	case schema.OpGreaterOrEquals:
		return as >= bs
	default:
		return as <= bs
	}
}

// truthy folds a value to a guard boolean. Nil, false, zero, the empty
// string, "false" and "0" are falsy; everything else is truthy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		if n, ok := toNumber(v); ok {
			return n != 0
		}
		return true
	}
}
