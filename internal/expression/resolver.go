package expression

import (
	"log/slog"
	"sort"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Resolver maps a textual (elementName, attributeName) pair to a concrete
// value against an EvaluationContext. Strategies are tried in a fixed
// precedence order, stopping at the first hit:
//
//  1. pattern elements by name, reading the attribute map,
//  2. the pattern match binding from that pattern element to a model element,
//  3. model elements scanned by display name,
//  4. elementName treated as a pattern element ID already present in the match,
//  5. the full pattern/model element lists scanned by name,
//
// A miss is not an error: Resolve returns nil and logs a warning, so
// partially specified rules stay usable while authoring.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger defaults to slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve looks up elementName.attributeName in ctx. Returns nil when no
// strategy matches.
func (r *Resolver) Resolve(elementName, attributeName string, ctx *schema.EvaluationContext) any {
	if ctx == nil {
		return nil
	}

	// 1. Pattern elements indexed by name, visited in sorted ID order so a
	// duplicated display name resolves to the same element every run.
	patternID := ""
	for _, id := range sortedKeys(ctx.PatternElements) {
		pe := ctx.PatternElements[id]
		if pe == nil || pe.Name != elementName {
			continue
		}
		patternID = id
		if v, ok := attrValue(pe.Attributes, attributeName); ok {
			return v
		}
		break
	}

	// 2. Map the matched pattern element through patternMatch to a model element.
	if patternID != "" && ctx.PatternMatch != nil && ctx.ModelElements != nil {
		if modelID, ok := ctx.PatternMatch.Matches[patternID]; ok {
			if v, ok := modelElementAttr(ctx.ModelElements[modelID], attributeName); ok {
				return v
			}
		}
	}

	// 3. Model elements scanned by display name, in sorted ID order for the
	// same stability under duplicated names.
	for _, id := range sortedKeys(ctx.ModelElements) {
		me := ctx.ModelElements[id]
		if me.Name() != elementName {
			continue
		}
		if v, ok := modelElementAttr(me, attributeName); ok {
			return v
		}
	}

	// 4. elementName is itself a key of the match map (an internal ID rather
	// than a human name).
	if ctx.PatternMatch != nil {
		if modelID, ok := ctx.PatternMatch.Matches[elementName]; ok {
			if v, ok := modelElementAttr(ctx.ModelElements[modelID], attributeName); ok {
				return v
			}
		}
	}

	// 5. Full-list scans as last resort.
	for _, pe := range ctx.AllPatternElements {
		if pe == nil || pe.Name != elementName {
			continue
		}
		if v, ok := attrValue(pe.Attributes, attributeName); ok {
			return v
		}
	}
	for _, me := range ctx.AllModelElements {
		if me.Name() != elementName {
			continue
		}
		if v, ok := modelElementAttr(me, attributeName); ok {
			return v
		}
	}

	r.logger.Warn("unresolved reference",
		slog.String("element", elementName),
		slog.String("attribute", attributeName))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// attrValue reads name from an attribute map, falling back to the legacy
// "attr-" prefixed key still found in older persisted pattern elements.
func attrValue(attrs map[string]any, name string) (any, bool) {
	if attrs == nil {
		return nil, false
	}
	if v, ok := attrs[name]; ok {
		return v, true
	}
	if v, ok := attrs["attr-"+name]; ok {
		return v, true
	}
	return nil, false
}

// modelElementAttr reads an attribute from a model element's style map
// (including the legacy key variant), then from its direct properties.
func modelElementAttr(me *schema.ModelElement, name string) (any, bool) {
	if me == nil {
		return nil, false
	}
	if v, ok := attrValue(me.Style, name); ok {
		return v, true
	}
	if v, ok := me.Properties[name]; ok {
		return v, true
	}
	return nil, false
}
