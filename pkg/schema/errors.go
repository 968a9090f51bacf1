package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeUnresolvedRef = "UNRESOLVED_REFERENCE"
	ErrCodeOperator      = "OPERATOR_MISMATCH"
	ErrCodeScriptSyntax  = "SCRIPT_SYNTAX_ERROR"
	ErrCodeScriptRuntime = "SCRIPT_RUNTIME_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
)

// ModelError is the structured error type for all modelexpr operations.
// The evaluator and validator never let it escape their public entry points;
// it is carried inside results and logs instead.
type ModelError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	ElementID string         `json:"element_id,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ModelError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("[%s] element %s: %s", e.Code, e.ElementID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ModelError.
func NewError(code, message string) *ModelError {
	return &ModelError{Code: code, Message: message}
}

// NewErrorf creates a new ModelError with a formatted message.
func NewErrorf(code, format string, args ...any) *ModelError {
	return &ModelError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithElement attaches a model element ID to the error.
func (e *ModelError) WithElement(elementID string) *ModelError {
	e.ElementID = elementID
	return e
}

// WithCause attaches an underlying cause.
func (e *ModelError) WithCause(err error) *ModelError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ModelError) WithDetails(details map[string]any) *ModelError {
	e.Details = details
	return e
}
