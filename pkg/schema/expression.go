package schema

// ExpressionType discriminates the Expression tagged union.
type ExpressionType string

const (
	ExpressionLiteral   ExpressionType = "literal"
	ExpressionReference ExpressionType = "reference"
	ExpressionOperation ExpressionType = "operation"
	ExpressionCompound  ExpressionType = "compound"
)

// Operator enumerates the operators of the rule expression language.
// The spellings below are canonical; "add" and "subtract" are accepted as
// input synonyms of increment/decrement and normalized on serialization.
type Operator string

const (
	OpIncrement       Operator = "increment"
	OpDecrement       Operator = "decrement"
	OpMultiply        Operator = "multiply"
	OpDivide          Operator = "divide"
	OpEquals          Operator = "equals"
	OpNotEquals       Operator = "not equals"
	OpGreaterThan     Operator = "greater than"
	OpLessThan        Operator = "less than"
	OpGreaterOrEquals Operator = "greater than or equals"
	OpLessOrEquals    Operator = "less than or equals"
	OpAnd             Operator = "AND"
	OpOr              Operator = "OR"
	OpNot             Operator = "NOT"
)

// IsArithmetic reports whether the operator is one of the four arithmetic forms.
func (o Operator) IsArithmetic() bool {
	switch o {
	case OpIncrement, OpDecrement, OpMultiply, OpDivide:
		return true
	}
	return false
}

// IsComparison reports whether the operator is a comparison form.
func (o Operator) IsComparison() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEquals, OpLessOrEquals:
		return true
	}
	return false
}

// IsLogical reports whether the operator is a compound (logical) form.
func (o Operator) IsLogical() bool {
	switch o {
	case OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

// ElementReference is a textual pointer to an element attribute. It is not
// structural: resolution against the runtime context happens only at
// evaluation time, so unknown names are legal here.
type ElementReference struct {
	ElementName   string `json:"elementName"`
	AttributeName string `json:"attributeName"`
}

// Expression is the tagged-union AST node of the rule expression language.
// The JSON shape matches the persisted format stored inside pattern element
// attribute maps and rule globalExpression fields.
//
// Expressions are immutable once parsed; edits replace the whole tree.
type Expression struct {
	Type         ExpressionType     `json:"type"`
	Value        any                `json:"value,omitempty"`
	Operator     Operator           `json:"operator,omitempty"`
	LeftOperand  *Expression        `json:"leftOperand,omitempty"`
	RightOperand *Expression        `json:"rightOperand,omitempty"`
	References   []ElementReference `json:"references,omitempty"`
	// IsNested marks a parenthesized subexpression. Formatting only: the
	// tree structure already encodes precedence, so evaluation ignores it.
	IsNested bool `json:"isNested,omitempty"`
}

// NewLiteral builds a literal node holding a raw string, number or boolean.
func NewLiteral(value any) *Expression {
	return &Expression{Type: ExpressionLiteral, Value: value}
}

// NewReference builds a reference node. At least one ElementReference is
// expected; the list is kept in authoring order.
func NewReference(refs ...ElementReference) *Expression {
	return &Expression{Type: ExpressionReference, References: refs}
}

// NewOperation builds an arithmetic or comparison node. The node's reference
// list is the union of its operands' references, in left-to-right order.
func NewOperation(op Operator, left, right *Expression) *Expression {
	e := &Expression{Type: ExpressionOperation, Operator: op, LeftOperand: left, RightOperand: right}
	e.References = append(e.References, CollectReferences(left)...)
	e.References = append(e.References, CollectReferences(right)...)
	return e
}

// NewCompound builds a logical AND/OR/NOT node.
func NewCompound(op Operator, left, right *Expression) *Expression {
	return &Expression{Type: ExpressionCompound, Operator: op, LeftOperand: left, RightOperand: right}
}

// CollectReferences gathers every ElementReference in the subtree rooted at
// expr, in left-to-right order. Returns nil for nil or reference-free trees.
func CollectReferences(expr *Expression) []ElementReference {
	if expr == nil {
		return nil
	}
	switch expr.Type {
	case ExpressionReference:
		return expr.References
	case ExpressionOperation:
		if len(expr.References) > 0 {
			return expr.References
		}
	}
	var refs []ElementReference
	refs = append(refs, CollectReferences(expr.LeftOperand)...)
	refs = append(refs, CollectReferences(expr.RightOperand)...)
	return refs
}
