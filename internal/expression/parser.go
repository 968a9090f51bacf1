// Package expression implements the rule expression language: a keyword
// grammar over element.attribute references, its AST parser/serializer, and
// the tree-walking evaluator with runtime reference resolution.
package expression

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// placeholder substituted for a parenthesized subexpression while the
// surrounding text is parsed.
const nestedPlaceholder = "#nested#"

var (
	dottedRefRe      = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)$`)
	dottedRefOpRe    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s+(increment|decrement|multiply|divide|add|subtract)\s+(.+)$`)
	bracedRefRe      = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\}`)
	innermostParenRe = regexp.MustCompile(`\(([^()]*)\)`)
)

// arithmeticKeywords in recognition order. add/subtract are input synonyms
// normalized to increment/decrement.
var arithmeticKeywords = []struct {
	keyword string
	op      schema.Operator
}{
	{"increment", schema.OpIncrement},
	{"decrement", schema.OpDecrement},
	{"multiply", schema.OpMultiply},
	{"divide", schema.OpDivide},
	{"add", schema.OpIncrement},
	{"subtract", schema.OpDecrement},
}

// comparisonKeywords in recognition order. Longer spellings come before their
// prefixes ("not equals" before "equals", "greater than or equals" before
// "greater than") so the first match is the intended one.
var comparisonKeywords = []struct {
	keyword string
	op      schema.Operator
}{
	{"not equals", schema.OpNotEquals},
	{"greater than or equals", schema.OpGreaterOrEquals},
	{"less than or equals", schema.OpLessOrEquals},
	{"greater than", schema.OpGreaterThan},
	{"less than", schema.OpLessThan},
	{"equals", schema.OpEquals},
}

// ParseContext carries authoring-time information. AvailableElements is used
// only to warn about unknown element names; resolution failure is deferred to
// evaluation, so unknown names never reject a parse.
type ParseContext struct {
	AvailableElements []string
}

// Parser turns authored text into Expression trees.
// Recognition is attempted in a fixed priority order; the first matching rule
// wins. The order is load-bearing: dotted references before braced references
// before parentheses before arithmetic before comparisons before logicals,
// with a literal fallback last.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser. A nil logger defaults to slog.Default().
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse parses input into an Expression, wrapping unrecognized text as a
// literal. It never panics and never returns nil for non-empty input.
func (p *Parser) Parse(input string, pctx *ParseContext) *schema.Expression {
	expr := p.ParseStrict(input, pctx)
	if expr != nil {
		return expr
	}
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	return schema.NewLiteral(trimmed)
}

// ParseStrict parses input into an Expression, returning nil when no grammar
// rule structurally applies. Callers that want the authoring-convenience
// behavior must wrap the raw text as a literal themselves (or use Parse).
func (p *Parser) ParseStrict(input string, pctx *ParseContext) *schema.Expression {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil
	}

	// 1. Direct dotted reference, optionally followed by an arithmetic keyword.
	if m := dottedRefOpRe.FindStringSubmatch(text); m != nil {
		ref := schema.ElementReference{ElementName: m[1], AttributeName: m[2]}
		p.warnUnknownElement(m[1], pctx)
		right := p.Parse(m[4], pctx)
		return schema.NewOperation(normalizeArithmetic(m[3]), schema.NewReference(ref), right)
	}
	if m := dottedRefRe.FindStringSubmatch(text); m != nil {
		p.warnUnknownElement(m[1], pctx)
		return schema.NewReference(schema.ElementReference{ElementName: m[1], AttributeName: m[2]})
	}

	// 2. Braced reference(s). Skipped when the surrounding text carries an
	// arithmetic, comparison or logical keyword, so those rules split first and
	// each side reparses its own braces; this keeps serialized operations
	// reparseable, including "{a.x} decrement 3" with a literal operand.
	if matches := bracedRefRe.FindAllStringSubmatch(text, -1); len(matches) > 0 && !hasStructuralKeyword(bracedRefRe.ReplaceAllString(text, "")) {
		refs := make([]schema.ElementReference, len(matches))
		for i, m := range matches {
			refs[i] = schema.ElementReference{ElementName: m[1], AttributeName: m[2]}
			p.warnUnknownElement(m[1], pctx)
		}
		if len(refs) == 1 {
			return schema.NewReference(refs[0])
		}
		// Multiple braced references merge into one operation whose operator
		// is inferred from keyword substrings in the surrounding text. The
		// first reference anchors the left operand.
		op := inferOperator(text)
		return schema.NewOperation(op, schema.NewReference(refs[0]), schema.NewReference(refs[1:]...))
	}

	// 3. First innermost parenthesized subexpression.
	if loc := innermostParenRe.FindStringSubmatchIndex(text); loc != nil {
		inner := text[loc[2]:loc[3]]
		nested := p.Parse(inner, pctx)
		if nested != nil {
			nested.IsNested = true
		}
		whole := text[loc[0]:loc[1]]
		if strings.TrimSpace(whole) == text {
			return nested
		}
		return p.spliceNested(text, whole, nested, pctx)
	}

	// 4. Arithmetic keyword form.
	if expr := p.parseKeyword(text, pctx, true); expr != nil {
		return expr
	}

	// 5. Comparison keyword form.
	if expr := p.parseKeyword(text, pctx, false); expr != nil {
		return expr
	}

	// 6. Logical keyword form, case-insensitive, greedy left split.
	if expr := p.parseLogical(text, pctx); expr != nil {
		return expr
	}

	return nil
}

// spliceNested substitutes a placeholder for the parenthesized slice, parses
// the remainder, and attaches the nested expression to whichever operand slot
// the placeholder occupies: left when it sits at the start, right otherwise.
func (p *Parser) spliceNested(text, paren string, nested *schema.Expression, pctx *ParseContext) *schema.Expression {
	remainder := strings.Replace(text, paren, nestedPlaceholder, 1)
	atStart := strings.HasPrefix(strings.TrimSpace(remainder), nestedPlaceholder)

	parsed := p.Parse(remainder, pctx)
	if parsed == nil {
		return nested
	}

	switch parsed.Type {
	case schema.ExpressionOperation, schema.ExpressionCompound:
		if atStart {
			parsed.LeftOperand = nested
		} else {
			parsed.RightOperand = nested
		}
		if parsed.Type == schema.ExpressionOperation {
			parsed.References = nil
			parsed.References = append(parsed.References, schema.CollectReferences(parsed.LeftOperand)...)
			parsed.References = append(parsed.References, schema.CollectReferences(parsed.RightOperand)...)
		}
		return parsed
	case schema.ExpressionLiteral:
		// The remainder reduced to just the placeholder.
		if s, ok := parsed.Value.(string); ok && strings.TrimSpace(s) == nestedPlaceholder {
			return nested
		}
	}
	return parsed
}

// parseKeyword splits text on the first arithmetic (or comparison) keyword,
// recursively parsing both sides.
func (p *Parser) parseKeyword(text string, pctx *ParseContext, arithmetic bool) *schema.Expression {
	if arithmetic {
		for _, k := range arithmeticKeywords {
			if left, right, ok := splitKeyword(text, k.keyword); ok {
				return schema.NewOperation(k.op, p.Parse(left, pctx), p.Parse(right, pctx))
			}
		}
		return nil
	}
	for _, k := range comparisonKeywords {
		if left, right, ok := splitKeyword(text, k.keyword); ok {
			return schema.NewOperation(k.op, p.Parse(left, pctx), p.Parse(right, pctx))
		}
	}
	return nil
}

// parseLogical splits on the last AND (then OR) keyword so the left operand
// is greedy, matching how authors chain conditions.
func (p *Parser) parseLogical(text string, pctx *ParseContext) *schema.Expression {
	upper := strings.ToUpper(text)
	for _, k := range []struct {
		keyword string
		op      schema.Operator
	}{
		{" AND ", schema.OpAnd},
		{" OR ", schema.OpOr},
	} {
		idx := strings.LastIndex(upper, k.keyword)
		if idx <= 0 || idx+len(k.keyword) >= len(text) {
			continue
		}
		left := p.Parse(text[:idx], pctx)
		right := p.Parse(text[idx+len(k.keyword):], pctx)
		return schema.NewCompound(k.op, left, right)
	}
	return nil
}

// hasStructuralKeyword reports whether text contains a space-padded
// arithmetic, comparison or logical keyword.
func hasStructuralKeyword(text string) bool {
	for _, k := range arithmeticKeywords {
		if strings.Contains(text, " "+k.keyword+" ") {
			return true
		}
	}
	for _, k := range comparisonKeywords {
		if strings.Contains(text, " "+k.keyword+" ") {
			return true
		}
	}
	upper := strings.ToUpper(text)
	return strings.Contains(upper, " AND ") || strings.Contains(upper, " OR ")
}

// splitKeyword splits text around the first space-delimited occurrence of the
// keyword, requiring non-empty sides.
func splitKeyword(text, keyword string) (left, right string, ok bool) {
	padded := " " + keyword + " "
	idx := strings.Index(text, padded)
	if idx < 0 {
		return "", "", false
	}
	left = strings.TrimSpace(text[:idx])
	right = strings.TrimSpace(text[idx+len(padded):])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}

// normalizeArithmetic maps a matched arithmetic keyword (including synonyms)
// to its canonical operator.
func normalizeArithmetic(keyword string) schema.Operator {
	switch keyword {
	case "increment", "add":
		return schema.OpIncrement
	case "decrement", "subtract":
		return schema.OpDecrement
	case "multiply":
		return schema.OpMultiply
	default:
		return schema.OpDivide
	}
}

// inferOperator picks the operator for a merged multi-reference node from
// keyword substrings in the surrounding text, defaulting to increment.
func inferOperator(text string) schema.Operator {
	switch {
	case strings.Contains(text, "increment"):
		return schema.OpIncrement
	case strings.Contains(text, "decrement"):
		return schema.OpDecrement
	case strings.Contains(text, "multiply"):
		return schema.OpMultiply
	default:
		return schema.OpIncrement
	}
}

func (p *Parser) warnUnknownElement(name string, pctx *ParseContext) {
	if pctx == nil || len(pctx.AvailableElements) == 0 {
		return
	}
	for _, el := range pctx.AvailableElements {
		if el == name {
			return
		}
	}
	p.logger.Warn("expression references unknown element; resolution deferred to evaluation",
		slog.String("element", name))
}
