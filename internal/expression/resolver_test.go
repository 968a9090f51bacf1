package expression

import (
	"testing"

	"github.com/micss-lab/modelexpr/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestResolve_NilContext(t *testing.T) {
	r := NewResolver(nil)
	assert.Nil(t, r.Resolve("Place", "tokens", nil))
}

func TestResolve_PatternElementAttribute(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place", Attributes: map[string]any{"tokens": float64(10)}},
		},
	}
	assert.Equal(t, float64(10), r.Resolve("Place", "tokens", ctx))
}

func TestResolve_LegacyAttrKey(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place", Attributes: map[string]any{"attr-tokens": float64(4)}},
		},
	}
	assert.Equal(t, float64(4), r.Resolve("Place", "tokens", ctx))
}

func TestResolve_ThroughPatternMatch(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place"},
		},
		PatternMatch: &schema.PatternMatch{Matches: map[string]string{"pe-1": "me-1"}},
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {ID: "me-1", Style: map[string]any{"tokens": float64(6)}},
		},
	}
	// The pattern element has no attribute of its own, so resolution follows
	// the match binding to the model element's style map.
	assert.Equal(t, float64(6), r.Resolve("Place", "tokens", ctx))
}

func TestResolve_ModelElementByDisplayName(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {ID: "me-1", Style: map[string]any{"name": "P1", "tokens": float64(3)}},
		},
	}
	assert.Equal(t, float64(3), r.Resolve("P1", "tokens", ctx))
}

func TestResolve_ModelElementProperties(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {
				ID:         "me-1",
				Style:      map[string]any{"name": "P1"},
				Properties: map[string]any{"capacity": float64(20)},
			},
		},
	}
	// The style map wins; direct properties are the fallback.
	assert.Equal(t, float64(20), r.Resolve("P1", "capacity", ctx))
}

func TestResolve_ElementNameAsMatchKey(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		PatternMatch: &schema.PatternMatch{Matches: map[string]string{"pe-internal": "me-1"}},
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {ID: "me-1", Style: map[string]any{"tokens": float64(9)}},
		},
	}
	assert.Equal(t, float64(9), r.Resolve("pe-internal", "tokens", ctx))
}

func TestResolve_FullListFallback(t *testing.T) {
	r := NewResolver(nil)

	t.Run("pattern elements", func(t *testing.T) {
		ctx := &schema.EvaluationContext{
			AllPatternElements: []*schema.PatternElement{
				{ID: "pe-9", Name: "arc", Attributes: map[string]any{"weight": float64(2)}},
			},
		}
		assert.Equal(t, float64(2), r.Resolve("arc", "weight", ctx))
	})

	t.Run("model elements", func(t *testing.T) {
		ctx := &schema.EvaluationContext{
			AllModelElements: []*schema.ModelElement{
				{ID: "me-9", Style: map[string]any{"name": "Sink", "drain": float64(1)}},
			},
		}
		assert.Equal(t, float64(1), r.Resolve("Sink", "drain", ctx))
	})
}

func TestResolve_PrecedenceOverFullListScan(t *testing.T) {
	r := NewResolver(nil)

	// The same name exists both as a matched pattern element and in the
	// full-list fallback with a different value; the match path must win.
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place"},
		},
		PatternMatch: &schema.PatternMatch{Matches: map[string]string{"pe-1": "me-1"}},
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {ID: "me-1", Style: map[string]any{"tokens": float64(10)}},
		},
		AllPatternElements: []*schema.PatternElement{
			{ID: "pe-other", Name: "Place", Attributes: map[string]any{"tokens": float64(99)}},
		},
	}
	assert.Equal(t, float64(10), r.Resolve("Place", "tokens", ctx))
}

func TestResolve_DuplicateNameDeterministic(t *testing.T) {
	r := NewResolver(nil)

	// Two pattern elements share a display name. The one with the smallest ID
	// must anchor resolution on every call, regardless of map iteration order.
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place"},
			"pe-2": {ID: "pe-2", Name: "Place"},
		},
		PatternMatch: &schema.PatternMatch{Matches: map[string]string{
			"pe-1": "me-1",
			"pe-2": "me-2",
		}},
		ModelElements: map[string]*schema.ModelElement{
			"me-1": {ID: "me-1", Style: map[string]any{"tokens": float64(10)}},
			"me-2": {ID: "me-2", Style: map[string]any{"tokens": float64(99)}},
		},
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, float64(10), r.Resolve("Place", "tokens", ctx))
	}
}

func TestResolve_Miss(t *testing.T) {
	r := NewResolver(nil)
	ctx := &schema.EvaluationContext{
		PatternElements: map[string]*schema.PatternElement{
			"pe-1": {ID: "pe-1", Name: "Place", Attributes: map[string]any{"tokens": float64(10)}},
		},
	}

	t.Run("unknown element", func(t *testing.T) {
		assert.Nil(t, r.Resolve("Ghost", "tokens", ctx))
	})

	t.Run("unknown attribute", func(t *testing.T) {
		assert.Nil(t, r.Resolve("Place", "ghost", ctx))
	})
}
