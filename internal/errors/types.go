package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeRouting    ErrorType = "routing"
	ErrorTypeInternal   ErrorType = "internal"
)

// ShellError is a structured error type with context.
type ShellError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Page        string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *ShellError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Page != "" {
		parts = append(parts, "page:"+e.Page)
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ShellError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. Two shell errors are equal when their
// type and code match, so sentinel values work with errors.Is.
func (e *ShellError) Is(target error) bool {
	var t *ShellError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ShellError) WithContext(key string, value interface{}) *ShellError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the request path the error belongs to.
func (e *ShellError) WithPath(path string) *ShellError {
	e.Path = path

	return e
}

// WithPage records the page the error belongs to.
func (e *ShellError) WithPage(page string) *ShellError {
	e.Page = page

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ShellError {
	return &ShellError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ShellError {
	return &ShellError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *ShellError {
	return &ShellError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ShellError {
	return &ShellError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewRoutingError creates a routing error.
func NewRoutingError(code, message string) *ShellError {
	return &ShellError{
		Type:        ErrorTypeRouting,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ShellError {
	return &ShellError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *ShellError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsType reports whether err is a ShellError of the given type.
func IsType(err error, t ErrorType) bool {
	var se *ShellError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// CodeOf returns the code of the first ShellError in err's chain.
func CodeOf(err error) string {
	var se *ShellError
	if errors.As(err, &se) {
		return se.Code
	}

	return ""
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level that matches its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *ShellError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeValidation, ErrorTypeRouting, ErrorTypeNetwork:
		h.logger.Warn(ctx, err, "Request error occurred",
			"type", se.Type,
			"code", se.Code,
			"page", se.Page,
			"path", se.Path)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", se.Type,
			"code", se.Code,
			"page", se.Page,
			"path", se.Path)
	}
}

// Common error codes.
const (
	ErrCodeMountPointMissing = "ERR_MOUNT_POINT_MISSING"
	ErrCodeAlreadyMounted    = "ERR_ALREADY_MOUNTED"
	ErrCodeRouteNotFound     = "ERR_ROUTE_NOT_FOUND"
	ErrCodeInvalidRoute      = "ERR_INVALID_ROUTE"
	ErrCodePageLoadFailed    = "ERR_PAGE_LOAD_FAILED"
	ErrCodeNavigationStale   = "ERR_NAVIGATION_STALE"
	ErrCodeProxyUnreachable  = "ERR_PROXY_UNREACHABLE"
	ErrCodeInvalidProxyRule  = "ERR_INVALID_PROXY_RULE"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodePluginConflict    = "ERR_PLUGIN_CONFLICT"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
)

// FieldValidationError reports a single invalid configuration field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	msgs := make([]string, 0, len(vec.Errors))
	for _, err := range vec.Errors {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("validation failed with %d errors: %s", len(vec.Errors), strings.Join(msgs, "; "))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToShellError converts the collection into a config ShellError, or nil when empty.
func (vec *ValidationErrorCollection) ToShellError() *ShellError {
	if !vec.HasErrors() {
		return nil
	}

	err := NewConfigError(ErrCodeConfigInvalid, "invalid configuration")
	err.Cause = vec
	for _, fe := range vec.Errors {
		err.WithContext(fe.FieldName, fe.FieldValue)
	}

	return err
}

// ErrMountPointMissing is returned when the host document lacks the mount element.
func ErrMountPointMissing(id string) *ShellError {
	return NewConfigError(ErrCodeMountPointMissing, "mount element not found: #"+id).
		WithContext("mount_id", id)
}

// ErrRouteNotFound is returned when no route matches a path.
func ErrRouteNotFound(path string) *ShellError {
	return NewRoutingError(ErrCodeRouteNotFound, "no route matches").WithPath(path)
}

// ErrPageLoadFailed wraps a lazy page loader failure.
func ErrPageLoadFailed(page string, cause error) *ShellError {
	err := NewInternalError(ErrCodePageLoadFailed, "page failed to load", cause).WithPage(page)
	err.Recoverable = true
	return err
}
