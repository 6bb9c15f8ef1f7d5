package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a convergence failure.
type ErrorKind string

const (
	// ErrorKindValidation indicates a declared attribute is missing, outside
	// its domain, or a name contains disallowed characters. Raised before any
	// side effect for the offending resource.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindExternalCommand indicates a collaborator invocation exited
	// non-zero (package manager, job CLI, supervisor, account tools).
	ErrorKindExternalCommand ErrorKind = "external_command"

	// ErrorKindTimeout indicates the readiness barrier never saw the service
	// come up before the caller gave up.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindUnimplemented indicates a declared strategy has no backing
	// implementation on this platform. Raised when the resource is created,
	// not when it is applied.
	ErrorKindUnimplemented ErrorKind = "unimplemented"

	// ErrorKindInternal covers local I/O and anything that fits no other kind.
	ErrorKindInternal ErrorKind = "internal"
)

// Validate checks if the error kind is valid.
func (k ErrorKind) Validate() error {
	switch k {
	case ErrorKindValidation, ErrorKindExternalCommand, ErrorKindTimeout,
		ErrorKindUnimplemented, ErrorKindInternal:
		return nil
	default:
		return fmt.Errorf("invalid error kind: %s", k)
	}
}

// EngineError is the single error type surfaced by a convergence run.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the identity of the declared resource that failed,
	// e.g. "project[cron]".
	Resource string `json:"resource,omitempty"`

	// Operation is the step or action being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		fmt.Fprintf(&b, " (resource=%s, operation=%s)", e.Resource, e.Operation)
	case e.Resource != "":
		fmt.Fprintf(&b, " (resource=%s)", e.Resource)
	case e.Operation != "":
		fmt.Fprintf(&b, " (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an EngineError of the same kind. A target
// carrying a Code must match that code too.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return e.Kind == t.Kind
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindValidation,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewExternalCommandError creates an error for a failed collaborator command.
// The command line, exit code and captured stderr are kept as details.
func NewExternalCommandError(command []string, exitCode int, stderr string, err error) *EngineError {
	e := &EngineError{
		Kind:    ErrorKindExternalCommand,
		Message: fmt.Sprintf("command %q exited with status %d", strings.Join(command, " "), exitCode),
		Code:    ErrCodeCommandFailed,
		Err:     err,
	}
	e.WithDetail("command", command).WithDetail("exit_code", exitCode)
	if s := strings.TrimSpace(stderr); s != "" {
		e.WithDetail("stderr", s)
		e.Message += ": " + s
	}
	return e
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindTimeout,
		Message: message,
		Code:    ErrCodeTimeout,
		Err:     err,
	}
}

// NewUnimplementedError creates an error for a strategy with no backing
// implementation.
func NewUnimplementedError(message string) *EngineError {
	return &EngineError{
		Kind:    ErrorKindUnimplemented,
		Message: message,
		Code:    ErrCodeUnimplemented,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindInternal,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first EngineError in err's chain, or
// ErrorKindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	return hasKind(err, ErrorKindValidation)
}

// IsExternalCommand returns true if the error is an external command error.
func IsExternalCommand(err error) bool {
	return hasKind(err, ErrorKindExternalCommand)
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return hasKind(err, ErrorKindTimeout)
}

// IsUnimplemented returns true if the error is an unimplemented error.
func IsUnimplemented(err error) bool {
	return hasKind(err, ErrorKindUnimplemented)
}

func hasKind(err error, kind ErrorKind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Attach returns err as an EngineError carrying the given resource and
// operation. Errors that already name a resource keep it; plain errors are
// wrapped as internal errors with their message preserved verbatim.
func Attach(err error, resource, operation string) error {
	if err == nil {
		return nil
	}
	var e *EngineError
	if !errors.As(err, &e) {
		return NewInternalError(operation+" failed", err).
			WithResource(resource).
			WithOperation(operation)
	}
	if e.Resource == "" {
		e.Resource = resource
	}
	if e.Operation == "" {
		e.Operation = operation
	}
	return err
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInvalidName   = "INVALID_NAME"
	ErrCodeRequired      = "REQUIRED_ATTRIBUTE"
	ErrCodeMultipleJobs  = "MULTIPLE_JOBS"
	ErrCodeCommandFailed = "COMMAND_FAILED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeUnimplemented = "UNIMPLEMENTED"
	ErrCodeUnknownTarget = "UNKNOWN_NOTIFICATION_TARGET"
	ErrCodePolicyDenied  = "POLICY_DENIED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)
