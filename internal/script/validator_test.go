package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

func newTestValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	v, err := NewValidator(nil, opts...)
	require.NoError(t, err)
	return v
}

func widgetModel(name string) (*schema.ModelElement, *schema.Model, *schema.Metamodel) {
	metamodel := &schema.Metamodel{
		ID:   "mm-1",
		Name: "Shop",
		Classes: []schema.Metaclass{
			{ID: "cls-1", Name: "Product"},
		},
	}
	element := &schema.ModelElement{
		ID:             "me-1",
		ModelElementID: "cls-1",
		Style:          map[string]any{"name": name},
	}
	model := &schema.Model{ID: "m-1", Name: "shop", Elements: []*schema.ModelElement{element}}
	return element, model, metamodel
}

// --- Syntax probe ---

func TestValidateSyntax_Valid(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateSyntax("", `len(self.name) > 0`)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestValidateSyntax_Empty(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateSyntax("", "   ")
	assert.False(t, result.Valid)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "empty")
}

func TestValidateSyntax_Malformed(t *testing.T) {
	v := newTestValidator(t)

	// Truncated comparison: both the body and the expression compile fail,
	// and the issue carries the unbalanced-syntax hint.
	result := v.ValidateSyntax("", `self.name >`)
	assert.False(t, result.Valid)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "unbalanced")
}

func TestValidateSyntax_UnknownLanguage(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateSyntax("lua", `true`)
	assert.False(t, result.Valid)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "lua")
}

func TestValidateSyntax_PerDialect(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		language string
		code     string
		valid    bool
	}{
		{"starlark", `self.tokens > 0`, true},
		{"expr", `self.tokens > 0`, true},
		{"cel", `self.tokens > 0.0`, true},
		{"jq", `.self.tokens > 0`, true},
		{"expr", `self.tokens >`, false},
		{"jq", `.self |`, false},
	}
	for _, tc := range cases {
		t.Run(tc.language+" "+tc.code, func(t *testing.T) {
			result := v.ValidateSyntax(tc.language, tc.code)
			assert.Equal(t, tc.valid, result.Valid)
		})
	}
}

// --- Evaluation outcomes ---

func TestEvaluate_NamePresence(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:         "c-1",
		Name:       "name must be set",
		Expression: `len(self.name) > 0`,
	}

	t.Run("passes with a name", func(t *testing.T) {
		element, model, metamodel := widgetModel("Widget")
		outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
		assert.True(t, outcome.Passed)
		assert.Empty(t, outcome.Message)
	})

	t.Run("fails with an empty name", func(t *testing.T) {
		element, model, metamodel := widgetModel("")
		outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
		assert.False(t, outcome.Passed)
		assert.Equal(t, "Constraint failed", outcome.Message)
	})
}

func TestEvaluate_ResultObject(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:   "c-2",
		Name: "beverage minimum",
		Expression: "if self.beverages == 0:\n" +
			"    return {\"valid\": False, \"message\": \"Must have at least one beverage\"}\n" +
			"return True",
	}

	metamodel := &schema.Metamodel{ID: "mm-1", Classes: []schema.Metaclass{{ID: "cls-1", Name: "Machine"}}}

	t.Run("fails with the object's message", func(t *testing.T) {
		element := &schema.ModelElement{ID: "me-1", ModelElementID: "cls-1", Style: map[string]any{"beverages": float64(0)}}
		model := &schema.Model{ID: "m-1", Elements: []*schema.ModelElement{element}}
		outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
		assert.False(t, outcome.Passed)
		assert.Equal(t, "Must have at least one beverage", outcome.Message)
	})

	t.Run("passes when satisfied", func(t *testing.T) {
		element := &schema.ModelElement{ID: "me-2", ModelElementID: "cls-1", Style: map[string]any{"beverages": float64(2)}}
		model := &schema.Model{ID: "m-1", Elements: []*schema.ModelElement{element}}
		outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
		assert.True(t, outcome.Passed)
	})
}

func TestEvaluate_RuntimeErrorBecomesFailure(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:         "c-3",
		Name:       "broken",
		Expression: `self.missing.deeper > 0`,
	}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Message, "broken")
}

func TestEvaluate_UnknownLanguage(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{ID: "c-4", Name: "x", Language: "lua", Expression: "true"}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Message, "lua")
}

func TestEvaluate_Timeout(t *testing.T) {
	v := newTestValidator(t, WithTimeout(50*time.Millisecond))

	constraint := &schema.ScriptConstraint{
		ID:   "c-5",
		Name: "spin",
		Expression: "total = 0\n" +
			"for i in range(1000000000):\n" +
			"    total += i\n" +
			"return True",
	}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Message, "timed out")
}

func TestEvaluate_NilContext(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{ID: "c-6", Name: "x", Expression: "True"}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(nil, constraint, element, model, metamodel)
	assert.True(t, outcome.Passed)
}

// --- Result interpretation ---

func TestInterpretResult(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		passed  bool
		message string
	}{
		{"nil passes", nil, true, ""},
		{"true passes", true, true, ""},
		{"false fails generically", false, false, "Constraint failed"},
		{"valid object passes", map[string]any{"valid": true}, true, ""},
		{"invalid object uses its message", map[string]any{"valid": false, "message": "too few"}, false, "too few"},
		{"invalid object without message", map[string]any{"valid": false}, false, "Constraint failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := interpretResult(tc.in)
			assert.Equal(t, tc.passed, outcome.Passed)
			assert.Equal(t, tc.message, outcome.Message)
		})
	}

	t.Run("unexpected value names itself", func(t *testing.T) {
		outcome := interpretResult("seven")
		assert.False(t, outcome.Passed)
		assert.Contains(t, outcome.Message, "seven")
	})

	t.Run("object without valid bool", func(t *testing.T) {
		outcome := interpretResult(map[string]any{"message": "x"})
		assert.False(t, outcome.Passed)
		assert.Contains(t, outcome.Message, "valid")
	})
}

// --- Dialect routing ---

func TestEvaluate_ExprDialect(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:         "c-7",
		Name:       "expr predicate",
		Language:   "expr",
		Expression: `self.name == "Widget"`,
	}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.True(t, outcome.Passed)
}

func TestEvaluate_CELDialect(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:         "c-8",
		Name:       "cel predicate",
		Language:   "cel",
		Expression: `self.name == "Widget"`,
	}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.True(t, outcome.Passed)
}

func TestEvaluate_JQDialect(t *testing.T) {
	v := newTestValidator(t)

	constraint := &schema.ScriptConstraint{
		ID:         "c-9",
		Name:       "jq predicate",
		Language:   "jq",
		Expression: `.self.name == "Widget"`,
	}
	element, model, metamodel := widgetModel("Widget")

	outcome := v.Evaluate(context.Background(), constraint, element, model, metamodel)
	assert.True(t, outcome.Passed)
}
