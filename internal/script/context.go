package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Reserved sandbox names that element bindings must not shadow.
var reservedNames = map[string]bool{
	"self": true, "model": true, "metamodel": true, "elements": true,
	"findElementById": true, "findElementsByType": true,
	"math": true, "json": true, "time": true,
}

var identInvalidRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// BuildSandbox assembles the environment a constraint script runs against:
//
//   - self: the element's attribute map plus id/type, with every outgoing
//     reference expanded into embedded views of the referenced elements,
//   - model: id/name and the flattened element list,
//   - metamodel: id/name,
//   - findElementById / findElementsByType helpers,
//   - a convenience binding from the lowercased metaclass name to self,
//   - one binding per uniquely-named model element (sanitized identifier),
//     also grouped under "elements" for the dialects that declare their
//     variables up front.
//
// The result is an explicit name-to-value map handed to the engine; scripts
// reference entries as free variables, never as interpreter globals.
func BuildSandbox(element *schema.ModelElement, model *schema.Model, metamodel *schema.Metamodel) map[string]any {
	selfView := expandedView(element, model, metamodel)

	env := map[string]any{
		"self":      selfView,
		"model":     modelView(model, metamodel),
		"metamodel": metamodelView(metamodel),
		"findElementById": LookupFunc(func(id string) any {
			if me := model.Element(id); me != nil {
				return flatView(me, metamodel)
			}
			return nil
		}),
		"findElementsByType": LookupFunc(func(typeName string) any {
			views := []any{}
			if model == nil {
				return views
			}
			for _, me := range model.Elements {
				if me != nil && metaclassName(me, metamodel) == typeName {
					views = append(views, flatView(me, metamodel))
				}
			}
			return views
		}),
	}

	// Lowercased metaclass name as an alias for self: a Place constraint can
	// read place.tokens instead of self.tokens.
	if cls := metaclassName(element, metamodel); cls != "" {
		alias := strings.ToLower(cls)
		if !reservedNames[alias] {
			env[alias] = selfView
		}
	}

	// Per-element bindings for uniquely-named elements.
	elements := map[string]any{}
	named := map[string][]*schema.ModelElement{}
	if model != nil {
		for _, me := range model.Elements {
			if me == nil {
				continue
			}
			name := sanitizeIdentifier(me.Name())
			if name == "" {
				continue
			}
			named[name] = append(named[name], me)
		}
	}
	for name, group := range named {
		if len(group) != 1 || reservedNames[name] {
			continue
		}
		view := flatView(group[0], metamodel)
		elements[name] = view
		if _, taken := env[name]; !taken {
			env[name] = view
		}
	}
	env["elements"] = elements

	return env
}

// expandedView builds the self view: attributes plus id/type, with each
// outgoing reference embedded as the referenced elements' flat views.
func expandedView(element *schema.ModelElement, model *schema.Model, metamodel *schema.Metamodel) map[string]any {
	view := flatView(element, metamodel)
	if element == nil {
		return view
	}
	for refName, target := range element.References {
		switch t := target.(type) {
		case string:
			if me := model.Element(t); me != nil {
				view[refName] = flatView(me, metamodel)
			}
		case []any:
			targets := make([]any, 0, len(t))
			for _, item := range t {
				id, ok := item.(string)
				if !ok {
					continue
				}
				if me := model.Element(id); me != nil {
					targets = append(targets, flatView(me, metamodel))
				}
			}
			view[refName] = targets
		case []string:
			targets := make([]any, 0, len(t))
			for _, id := range t {
				if me := model.Element(id); me != nil {
					targets = append(targets, flatView(me, metamodel))
				}
			}
			view[refName] = targets
		}
	}
	return view
}

// flatView builds an element's attribute map plus id/type, without reference
// expansion. Legacy "attr-" prefixed style keys are folded onto their
// canonical names, with the canonical entry winning on conflict.
func flatView(element *schema.ModelElement, metamodel *schema.Metamodel) map[string]any {
	view := map[string]any{}
	if element == nil {
		return view
	}
	for k, v := range element.Style {
		if canonical, found := strings.CutPrefix(k, "attr-"); found {
			if _, exists := element.Style[canonical]; exists {
				continue
			}
			view[canonical] = v
			continue
		}
		view[k] = v
	}
	for k, v := range element.Properties {
		if _, exists := view[k]; !exists {
			view[k] = v
		}
	}
	view["id"] = element.ID
	view["type"] = metaclassName(element, metamodel)
	return view
}

func modelView(model *schema.Model, metamodel *schema.Metamodel) map[string]any {
	if model == nil {
		return map[string]any{"id": "", "name": "", "elements": []any{}}
	}
	views := make([]any, 0, len(model.Elements))
	for _, me := range model.Elements {
		if me != nil {
			views = append(views, flatView(me, metamodel))
		}
	}
	return map[string]any{
		"id":       model.ID,
		"name":     model.Name,
		"elements": views,
	}
}

func metamodelView(metamodel *schema.Metamodel) map[string]any {
	if metamodel == nil {
		return map[string]any{"id": "", "name": ""}
	}
	return map[string]any{"id": metamodel.ID, "name": metamodel.Name}
}

func metaclassName(element *schema.ModelElement, metamodel *schema.Metamodel) string {
	if element == nil {
		return ""
	}
	if cls := metamodel.Class(element.ModelElementID); cls != nil {
		return cls.Name
	}
	return element.ModelElementID
}

// sanitizeIdentifier maps an element display name to a valid identifier:
// invalid characters become underscores and a leading digit is prefixed.
func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	s := identInvalidRe.ReplaceAllString(name, "_")
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}
