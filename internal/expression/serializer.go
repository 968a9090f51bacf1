package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Serialize renders an Expression back to canonical text. The round trip
// through Parse is semantic rather than textual: accepted input forms are a
// strict superset of emitted forms. Dotted references come back braced, and
// the add/subtract synonyms come back as increment/decrement.
func Serialize(expr *schema.Expression) string {
	if expr == nil {
		return ""
	}
	switch expr.Type {
	case schema.ExpressionLiteral:
		return formatLiteral(expr.Value)
	case schema.ExpressionReference:
		tokens := make([]string, len(expr.References))
		for i, ref := range expr.References {
			tokens[i] = "{" + ref.ElementName + "." + ref.AttributeName + "}"
		}
		return strings.Join(tokens, ", ")
	case schema.ExpressionOperation:
		return serializeOperand(expr.LeftOperand) + " " + string(expr.Operator) + " " + serializeOperand(expr.RightOperand)
	case schema.ExpressionCompound:
		if expr.Operator == schema.OpNot {
			return "NOT " + serializeOperand(expr.LeftOperand)
		}
		if expr.LeftOperand == nil {
			return serializeOperand(expr.RightOperand)
		}
		if expr.RightOperand == nil {
			return serializeOperand(expr.LeftOperand)
		}
		return serializeOperand(expr.LeftOperand) + " " + string(expr.Operator) + " " + serializeOperand(expr.RightOperand)
	}
	return ""
}

// serializeOperand renders an operand, restoring parentheses around nested
// subexpressions so the structural precedence survives reparsing.
func serializeOperand(expr *schema.Expression) string {
	if expr == nil {
		return ""
	}
	s := Serialize(expr)
	if expr.IsNested {
		return "(" + s + ")"
	}
	return s
}

// formatLiteral renders a literal value without quoting. Numbers drop
// trailing zeros so 7.0 prints as 7.
func formatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
