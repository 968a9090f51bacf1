package schema

import "fmt"

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is a single constraint violation (or authoring problem)
// scoped to a model element. Consumed by the report renderer.
type ValidationIssue struct {
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	ElementID    string   `json:"elementId,omitempty"`
	ConstraintID string   `json:"constraintId,omitempty"`
	Expression   string   `json:"expression,omitempty"`
}

// ValidationReport aggregates the issues of one validation pass over a model.
type ValidationReport struct {
	ID      string            `json:"id,omitempty"`
	ModelID string            `json:"modelId,omitempty"`
	Checked int               `json:"checked"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// Valid returns true when the report carries no error-severity issues.
// Warnings and infos are acceptable.
func (r *ValidationReport) Valid() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Add appends an issue.
func (r *ValidationReport) Add(iss ValidationIssue) {
	r.Issues = append(r.Issues, iss)
}

// AddError appends an error-severity issue.
func (r *ValidationReport) AddError(elementID, constraintID, message string) {
	r.Issues = append(r.Issues, ValidationIssue{
		Severity: SeverityError, Message: message,
		ElementID: elementID, ConstraintID: constraintID,
	})
}

// Merge combines another report's issues and checked count into this one.
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}
	r.Checked += other.Checked
	r.Issues = append(r.Issues, other.Issues...)
}

// Count returns the number of issues at the given severity.
func (r *ValidationReport) Count(sev Severity) int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity == sev {
			n++
		}
	}
	return n
}

// Summary renders a one-line digest for logs and CLI output.
func (r *ValidationReport) Summary() string {
	return fmt.Sprintf("%d element(s) checked, %d error(s), %d warning(s), %d info",
		r.Checked, r.Count(SeverityError), r.Count(SeverityWarning), r.Count(SeverityInfo))
}
