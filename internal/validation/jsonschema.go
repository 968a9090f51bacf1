// Package validation checks authored artifacts before they reach the
// evaluator: persisted expression JSON and constraint records against
// embedded JSON Schemas, and constraint suites against the metamodel they
// target.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/micss-lab/modelexpr/pkg/schema"
)

// expressionSchemaJSON is the JSON Schema for the persisted Expression shape.
// Embedded as a constant to avoid filesystem dependencies.
const expressionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://modelexpr.dev/schemas/expression.json",
  "$ref": "#/$defs/expression",
  "$defs": {
    "expression": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["literal", "reference", "operation", "compound"]
        },
        "value": {},
        "operator": {
          "type": "string",
          "enum": [
            "increment", "decrement", "multiply", "divide",
            "equals", "not equals",
            "greater than", "less than",
            "greater than or equals", "less than or equals",
            "AND", "OR", "NOT"
          ]
        },
        "leftOperand": { "$ref": "#/$defs/expression" },
        "rightOperand": { "$ref": "#/$defs/expression" },
        "references": {
          "type": "array",
          "items": { "$ref": "#/$defs/elementReference" }
        },
        "isNested": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "elementReference": {
      "type": "object",
      "required": ["elementName", "attributeName"],
      "properties": {
        "elementName": { "type": "string", "minLength": 1 },
        "attributeName": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// constraintSchemaJSON is the JSON Schema for script constraint records.
const constraintSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://modelexpr.dev/schemas/constraint.json",
  "type": "object",
  "required": ["id", "name", "expression", "severity"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "contextClassId": { "type": "string" },
    "contextClassName": { "type": "string" },
    "expression": { "type": "string", "minLength": 1 },
    "language": {
      "type": "string",
      "enum": ["starlark", "expr", "cel", "jq"]
    },
    "description": { "type": "string" },
    "severity": {
      "type": "string",
      "enum": ["error", "warning", "info"]
    },
    "isValid": { "type": "boolean" },
    "errorMessage": { "type": "string" }
  },
  "additionalProperties": false
}`

// SchemaValidator validates persisted shapes against the embedded JSON
// Schemas (Draft 2020-12). It is safe for concurrent use.
type SchemaValidator struct {
	expressionSchema *jsonschema.Schema
	constraintSchema *jsonschema.Schema
}

// NewSchemaValidator creates a SchemaValidator with both schemas pre-compiled.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	compile := func(id, src string) (*jsonschema.Schema, error) {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", id, err)
		}
		if err := c.AddResource(id, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", id, err)
		}
		compiled, err := c.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", id, err)
		}
		return compiled, nil
	}

	exprSchema, err := compile("https://modelexpr.dev/schemas/expression.json", expressionSchemaJSON)
	if err != nil {
		return nil, err
	}
	constraintSchema, err := compile("https://modelexpr.dev/schemas/constraint.json", constraintSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &SchemaValidator{
		expressionSchema: exprSchema,
		constraintSchema: constraintSchema,
	}, nil
}

// ValidateExpressionJSON validates a persisted expression document.
func (v *SchemaValidator) ValidateExpressionJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "expression document is empty")
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "expression document is not valid JSON").WithCause(err)
	}

	if err := v.expressionSchema.Validate(doc); err != nil {
		return toModelError(err)
	}
	return nil
}

// ValidateConstraint validates a script constraint record.
func (v *SchemaValidator) ValidateConstraint(c *schema.ScriptConstraint) error {
	if c == nil {
		return schema.NewError(schema.ErrCodeValidation, "constraint is nil")
	}

	doc, err := toJSONValue(c)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize constraint").WithCause(err)
	}

	if err := v.constraintSchema.Validate(doc); err != nil {
		return toModelError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toModelError converts a jsonschema.ValidationError into a ModelError with
// the leaf violations listed by instance location.
func toModelError(err error) *schema.ModelError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
