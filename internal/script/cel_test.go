package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

func TestCELEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*CELEngine)(nil)
}

func TestCEL_Name(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_SelfPredicate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	env := map[string]any{
		"self": map[string]any{"name": "Widget", "tokens": float64(5)},
	}

	t.Run("string", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `self.name == "Widget"`, env)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("numeric", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `self.tokens > 3.0`, env)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestCEL_ElementsAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	env := map[string]any{
		"elements": map[string]any{
			"P1": map[string]any{"tokens": float64(3)},
		},
	}
	out, err := e.Evaluate(context.Background(), `elements.P1.tokens == 3.0`, env)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_ModelElementList(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	env := map[string]any{
		"model": map[string]any{
			"elements": []any{
				map[string]any{"type": "Place"},
				map[string]any{"type": "Transition"},
			},
		},
	}
	out, err := e.Evaluate(context.Background(), `model.elements.filter(e, e.type == "Place").size() == 1`, env)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_EmptyCode(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	err = e.Check(`self.tokens >>>`)
	require.Error(t, err)

	var me *schema.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, schema.ErrCodeScriptSyntax, me.Code)
}

func TestCEL_UndeclaredVariable(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// Only self/model/metamodel/elements are declared; anything else is a
	// compile error, closing the sandbox.
	err = e.Check(`os.getenv("HOME") != ""`)
	require.Error(t, err)
}

func TestCEL_MissingKeysDefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `!("tokens" in self)`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}
