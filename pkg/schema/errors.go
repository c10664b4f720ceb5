package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeFieldNotFound    = "FIELD_NOT_FOUND"
	ErrCodeFunctionNotFound = "FUNCTION_NOT_FOUND"
	ErrCodeCalculation      = "CALCULATION_ERROR"
	ErrCodeTransform        = "TRANSFORM_ERROR"

	// Safe-eval sub-kinds.
	ErrCodeEvalSyntax     = "EVAL_SYNTAX_ERROR"
	ErrCodeEvalDisallowed = "EVAL_DISALLOWED_CONSTRUCT"
	ErrCodeEvalUndefined  = "EVAL_UNDEFINED_NAME"
	ErrCodeEvalTooComplex = "EVAL_TOO_COMPLEX"
	ErrCodeEvalExecution  = "EVAL_EXECUTION_ERROR"
)

// CalcError is the structured error type for all engine operations.
type CalcError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Field   string         `json:"field,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CalcError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] field %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CalcError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CalcError.
func NewError(code, message string) *CalcError {
	return &CalcError{Code: code, Message: message}
}

// NewErrorf creates a new CalcError with a formatted message.
func NewErrorf(code, format string, args ...any) *CalcError {
	return &CalcError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches the template field or path the error belongs to.
func (e *CalcError) WithField(field string) *CalcError {
	e.Field = field
	return e
}

// WithCause attaches an underlying cause.
func (e *CalcError) WithCause(err error) *CalcError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CalcError) WithDetails(details map[string]any) *CalcError {
	e.Details = details
	return e
}

// IsCode reports whether err is a *CalcError carrying the given code.
func IsCode(err error, code string) bool {
	ce, ok := err.(*CalcError)
	return ok && ce.Code == code
}
