package validation

import (
	"fmt"
	"strings"

	"github.com/micss-lab/modelexpr/internal/script"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

// ValidateSuite performs semantic analysis on a constraint suite against the
// metamodel it targets, and syntax-probes every constraint. Each constraint's
// IsValid/ErrorMessage fields are stamped in place so later passes can skip
// broken ones. The returned report carries authoring issues only; it never
// touches model elements.
func ValidateSuite(constraints []schema.ScriptConstraint, metamodel *schema.Metamodel, probe *script.Validator) *schema.ValidationReport {
	report := &schema.ValidationReport{}

	seen := make(map[string]bool, len(constraints))
	for i := range constraints {
		c := &constraints[i]

		if seen[c.ID] {
			report.Add(schema.ValidationIssue{
				Severity:     schema.SeverityError,
				Message:      fmt.Sprintf("duplicate constraint id %q", c.ID),
				ConstraintID: c.ID,
			})
		}
		seen[c.ID] = true

		validateContextClass(c, metamodel, report)
		validateSeverity(c, report)

		if strings.TrimSpace(c.Expression) == "" {
			c.IsValid = false
			c.ErrorMessage = "constraint expression is empty"
			report.Add(schema.ValidationIssue{
				Severity:     schema.SeverityError,
				Message:      c.ErrorMessage,
				ConstraintID: c.ID,
			})
			continue
		}

		if probe == nil {
			c.IsValid = true
			c.ErrorMessage = ""
			continue
		}

		result := probe.ValidateSyntax(c.Language, c.Expression)
		c.IsValid = result.Valid
		if result.Valid {
			c.ErrorMessage = ""
			continue
		}
		c.ErrorMessage = strings.Join(result.Issues, "; ")
		report.Add(schema.ValidationIssue{
			Severity:     schema.SeverityError,
			Message:      fmt.Sprintf("constraint %q does not compile: %s", c.Name, c.ErrorMessage),
			ConstraintID: c.ID,
			Expression:   c.Expression,
		})
	}

	return report
}

// validateContextClass checks that the constraint targets an existing
// metaclass, by ID first and name as a fallback. A name-only match fills in
// the missing ID so the runner can select elements by ID alone.
func validateContextClass(c *schema.ScriptConstraint, metamodel *schema.Metamodel, report *schema.ValidationReport) {
	if c.ContextClassID == "" && c.ContextClassName == "" {
		report.Add(schema.ValidationIssue{
			Severity:     schema.SeverityError,
			Message:      fmt.Sprintf("constraint %q has no context class", c.Name),
			ConstraintID: c.ID,
		})
		return
	}

	if c.ContextClassID != "" {
		if cls := metamodel.Class(c.ContextClassID); cls != nil {
			if c.ContextClassName == "" {
				c.ContextClassName = cls.Name
			}
			return
		}
	}
	if c.ContextClassName != "" {
		if cls := metamodel.ClassByName(c.ContextClassName); cls != nil {
			c.ContextClassID = cls.ID
			return
		}
	}

	report.Add(schema.ValidationIssue{
		Severity: schema.SeverityError,
		Message: fmt.Sprintf("constraint %q references unknown context class %q",
			c.Name, firstNonEmpty(c.ContextClassName, c.ContextClassID)),
		ConstraintID: c.ID,
	})
}

// validateSeverity defaults an empty severity to error and flags unknown values.
func validateSeverity(c *schema.ScriptConstraint, report *schema.ValidationReport) {
	switch c.Severity {
	case schema.SeverityError, schema.SeverityWarning, schema.SeverityInfo:
	case "":
		c.Severity = schema.SeverityError
	default:
		report.Add(schema.ValidationIssue{
			Severity:     schema.SeverityWarning,
			Message:      fmt.Sprintf("constraint %q has unknown severity %q, treated as error", c.Name, c.Severity),
			ConstraintID: c.ID,
		})
		c.Severity = schema.SeverityError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
