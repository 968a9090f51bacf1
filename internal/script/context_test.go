package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

func sandboxFixture() (*schema.ModelElement, *schema.Model, *schema.Metamodel) {
	metamodel := &schema.Metamodel{
		ID:   "mm-1",
		Name: "PetriNet",
		Classes: []schema.Metaclass{
			{ID: "cls-place", Name: "Place"},
			{ID: "cls-trans", Name: "Transition"},
		},
	}
	p1 := &schema.ModelElement{
		ID:             "me-1",
		ModelElementID: "cls-place",
		Style:          map[string]any{"name": "P1", "tokens": float64(3)},
		References:     map[string]any{"outgoing": []any{"me-2"}},
	}
	t1 := &schema.ModelElement{
		ID:             "me-2",
		ModelElementID: "cls-trans",
		Style:          map[string]any{"name": "T1"},
	}
	model := &schema.Model{ID: "m-1", Name: "net", Elements: []*schema.ModelElement{p1, t1}}
	return p1, model, metamodel
}

func TestBuildSandbox_Self(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	self, ok := env["self"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "me-1", self["id"])
	assert.Equal(t, "Place", self["type"])
	assert.Equal(t, float64(3), self["tokens"])
}

func TestBuildSandbox_ReferenceExpansion(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	self := env["self"].(map[string]any)
	outgoing, ok := self["outgoing"].([]any)
	require.True(t, ok, "outgoing reference should expand to a list of views")
	require.Len(t, outgoing, 1)

	target, ok := outgoing[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "me-2", target["id"])
	assert.Equal(t, "Transition", target["type"])
}

func TestBuildSandbox_ModelView(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	mv, ok := env["model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m-1", mv["id"])
	assert.Equal(t, "net", mv["name"])
	assert.Len(t, mv["elements"], 2)
}

func TestBuildSandbox_MetamodelView(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	mv, ok := env["metamodel"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mm-1", mv["id"])
	assert.Equal(t, "PetriNet", mv["name"])
}

func TestBuildSandbox_Helpers(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	byID, ok := env["findElementById"].(LookupFunc)
	require.True(t, ok)

	t.Run("findElementById hit", func(t *testing.T) {
		view, ok := byID("me-2").(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "T1", view["name"])
	})

	t.Run("findElementById miss", func(t *testing.T) {
		assert.Nil(t, byID("nope"))
	})

	byType, ok := env["findElementsByType"].(LookupFunc)
	require.True(t, ok)

	t.Run("findElementsByType", func(t *testing.T) {
		views, ok := byType("Place").([]any)
		require.True(t, ok)
		require.Len(t, views, 1)
		assert.Equal(t, "me-1", views[0].(map[string]any)["id"])
	})

	t.Run("findElementsByType unknown", func(t *testing.T) {
		views, ok := byType("Ghost").([]any)
		require.True(t, ok)
		assert.Empty(t, views)
	})
}

func TestBuildSandbox_MetaclassAlias(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	alias, ok := env["place"].(map[string]any)
	require.True(t, ok, "lowercased metaclass name should alias self")
	assert.Equal(t, "me-1", alias["id"])
}

func TestBuildSandbox_NamedElementBindings(t *testing.T) {
	element, model, metamodel := sandboxFixture()
	env := BuildSandbox(element, model, metamodel)

	p1, ok := env["P1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "me-1", p1["id"])

	elements, ok := env["elements"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, elements, "P1")
	assert.Contains(t, elements, "T1")
}

func TestBuildSandbox_DuplicateNamesSkipped(t *testing.T) {
	metamodel := &schema.Metamodel{ID: "mm-1", Classes: []schema.Metaclass{{ID: "cls-1", Name: "Place"}}}
	a := &schema.ModelElement{ID: "me-1", ModelElementID: "cls-1", Style: map[string]any{"name": "Dup"}}
	b := &schema.ModelElement{ID: "me-2", ModelElementID: "cls-1", Style: map[string]any{"name": "Dup"}}
	model := &schema.Model{ID: "m-1", Elements: []*schema.ModelElement{a, b}}

	env := BuildSandbox(a, model, metamodel)
	_, bound := env["Dup"]
	assert.False(t, bound, "ambiguous names must not be bound")
}

func TestBuildSandbox_ReservedNamesNotShadowed(t *testing.T) {
	metamodel := &schema.Metamodel{ID: "mm-1", Classes: []schema.Metaclass{{ID: "cls-1", Name: "Model"}}}
	a := &schema.ModelElement{ID: "me-1", ModelElementID: "cls-1", Style: map[string]any{"name": "self"}}
	model := &schema.Model{ID: "m-1", Elements: []*schema.ModelElement{a}}

	env := BuildSandbox(a, model, metamodel)

	// The element named "self" must not replace the self view, and the
	// "model" metaclass alias must not replace the model view.
	self, ok := env["self"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "me-1", self["id"])

	mv, ok := env["model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m-1", mv["id"])
}

func TestBuildSandbox_LegacyAttrKeysFolded(t *testing.T) {
	metamodel := &schema.Metamodel{ID: "mm-1"}
	element := &schema.ModelElement{
		ID:    "me-1",
		Style: map[string]any{"attr-weight": float64(2), "name": "A1"},
	}
	model := &schema.Model{ID: "m-1", Elements: []*schema.ModelElement{element}}

	env := BuildSandbox(element, model, metamodel)
	self := env["self"].(map[string]any)
	assert.Equal(t, float64(2), self["weight"])
	assert.NotContains(t, self, "attr-weight")
}

func TestBuildSandbox_NilInputs(t *testing.T) {
	env := BuildSandbox(nil, nil, nil)

	require.NotNil(t, env)
	assert.Contains(t, env, "self")
	assert.Contains(t, env, "model")
	assert.Contains(t, env, "metamodel")

	byType := env["findElementsByType"].(LookupFunc)
	assert.Empty(t, byType("Place"))
}

func TestSanitizeIdentifier(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"P1", "P1"},
		{"my place", "my_place"},
		{"3rd", "_3rd"},
		{"a-b.c", "a_b_c"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeIdentifier(tc.in), "input %q", tc.in)
	}
}
