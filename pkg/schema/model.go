package schema

// Position is a canvas coordinate owned by the editors. Carried opaquely.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PatternElement is a typed placeholder node in a transformation rule's
// left/right-hand side or negative condition. Owned by the rule editor;
// read-only from this module's perspective.
type PatternElement struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
	References map[string]any `json:"references,omitempty"`
	Position   *Position      `json:"position,omitempty"`
}

// PatternMatch binds pattern element IDs to concrete model element IDs,
// produced by the (external) pattern matcher before a rule fires.
type PatternMatch struct {
	Matches map[string]string `json:"matches"`
}

// ModelElement is a concrete instance node in a user model. Attribute values
// live in the style map; some providers additionally expose direct top-level
// properties, carried here in Properties.
type ModelElement struct {
	ID             string         `json:"id"`
	ModelElementID string         `json:"modelElementId,omitempty"`
	Style          map[string]any `json:"style,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
	References     map[string]any `json:"references,omitempty"`
}

// Name returns the element's display name, read from style.name with a
// fallback to the direct property of the same name.
func (e *ModelElement) Name() string {
	if e == nil {
		return ""
	}
	if v, ok := e.Style["name"].(string); ok && v != "" {
		return v
	}
	if v, ok := e.Properties["name"].(string); ok {
		return v
	}
	return ""
}

// MetaAttribute describes one attribute slot of a metaclass.
type MetaAttribute struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Default any    `json:"default,omitempty"`
}

// MetaReference describes one outgoing reference slot of a metaclass.
type MetaReference struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	Many   bool   `json:"many,omitempty"`
}

// Metaclass is a type definition in the metamodel.
type Metaclass struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Attributes []MetaAttribute `json:"attributes,omitempty"`
	References []MetaReference `json:"references,omitempty"`
}

// Metamodel is the type layer a model instantiates.
type Metamodel struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Classes []Metaclass `json:"classes,omitempty"`
}

// Class returns the metaclass with the given ID, or nil.
func (m *Metamodel) Class(id string) *Metaclass {
	if m == nil {
		return nil
	}
	for i := range m.Classes {
		if m.Classes[i].ID == id {
			return &m.Classes[i]
		}
	}
	return nil
}

// ClassByName returns the metaclass with the given name, or nil.
func (m *Metamodel) ClassByName(name string) *Metaclass {
	if m == nil {
		return nil
	}
	for i := range m.Classes {
		if m.Classes[i].Name == name {
			return &m.Classes[i]
		}
	}
	return nil
}

// Model is a user model instance.
type Model struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	MetamodelID string          `json:"metamodelId,omitempty"`
	Elements    []*ModelElement `json:"elements,omitempty"`
}

// Element returns the model element with the given ID, or nil.
func (m *Model) Element(id string) *ModelElement {
	if m == nil {
		return nil
	}
	for _, e := range m.Elements {
		if e != nil && e.ID == id {
			return e
		}
	}
	return nil
}

// ElementsOfType returns all elements instantiating the given metaclass ID.
func (m *Model) ElementsOfType(metaclassID string) []*ModelElement {
	if m == nil {
		return nil
	}
	var out []*ModelElement
	for _, e := range m.Elements {
		if e != nil && e.ModelElementID == metaclassID {
			out = append(out, e)
		}
	}
	return out
}

// EvaluationContext is the multi-shape runtime context references are
// resolved against. Every surface is optional; the resolver tries them in a
// fixed precedence order.
type EvaluationContext struct {
	PatternMatch       *PatternMatch              `json:"patternMatch,omitempty"`
	PatternElements    map[string]*PatternElement `json:"patternElements,omitempty"`
	ModelElements      map[string]*ModelElement   `json:"modelElements,omitempty"`
	AllPatternElements []*PatternElement          `json:"allPatternElements,omitempty"`
	AllModelElements   []*ModelElement            `json:"allModelElements,omitempty"`
}

// ScriptConstraint is a user-authored boolean predicate validated against
// model elements of a given context class.
type ScriptConstraint struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	ContextClassID   string   `json:"contextClassId" yaml:"contextClassId"`
	ContextClassName string   `json:"contextClassName,omitempty" yaml:"contextClassName,omitempty"`
	Expression       string   `json:"expression" yaml:"expression"`
	Language         string   `json:"language,omitempty" yaml:"language,omitempty"` // starlark (default), expr, cel, jq
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	Severity         Severity `json:"severity" yaml:"severity"`
	// IsValid is false when the last syntax probe failed; invalid constraints
	// are excluded from execution until edited.
	IsValid      bool   `json:"isValid" yaml:"isValid,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}
