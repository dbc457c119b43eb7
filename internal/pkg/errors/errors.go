package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

const (
	// CodeInternal indicates an unexpected internal error.
	CodeInternal Code = "INTERNAL_ERROR"
	// CodeValidation indicates invalid input.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict indicates a conflicting state.
	CodeConflict Code = "CONFLICT"
	// CodeUnauthorized indicates missing or invalid credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden indicates insufficient permissions.
	CodeForbidden Code = "FORBIDDEN"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"
	// CodeUnavailable indicates a dependency is unreachable.
	CodeUnavailable Code = "UNAVAILABLE"
	// CodeStaging indicates a failure while preparing working files.
	CodeStaging Code = "STAGING_ERROR"
	// CodeBackpressure indicates the job queue is at capacity.
	CodeBackpressure Code = "BACKPRESSURE"
	// CodeTranscode indicates the media tool exited unsuccessfully.
	CodeTranscode Code = "TRANSCODE_FAILURE"
	// CodeCancelled indicates the caller abandoned the operation.
	CodeCancelled Code = "CANCELLED"
	// CodeQuotaExhausted indicates the user has no credits or plan.
	CodeQuotaExhausted Code = "QUOTA_EXHAUSTED"
	// CodePayloadTooLarge indicates the upload exceeds the size limit.
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	// CodeRateLimited indicates the caller exceeded the request rate.
	CodeRateLimited Code = "RATE_LIMITED"
)

// Frame represents a single stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error is the application error type carrying a code, message and context.
type Error struct {
	// Code is the machine-readable error code.
	Code Code
	// Message is the human-readable error message.
	Message string
	// Op is the operation that failed (e.g. "queue.Submit").
	Op string
	// Err is the wrapped underlying error, if any.
	Err error
	// Fields holds additional structured context.
	Fields map[string]any
	// Stack holds the captured stack frames.
	Stack []Frame
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithOp sets the operation name and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithField adds a single context field and returns the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple context fields and returns the error.
func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// HTTPStatus maps the error code to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeQuotaExhausted:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeTranscode:
		return http.StatusUnprocessableEntity
	case CodeBackpressure, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeCancelled:
		// Client closed request, nginx convention.
		return 499
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StackTrace returns a formatted stack trace.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return b.String()
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an error with a message, preserving the code if err is an Error.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	var appErr *Error
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	var appErr *Error
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
		Stack:   captureStack(2),
	}
}

// WrapWithCode wraps an error with an explicit code.
func WrapWithCode(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Stack:   captureStack(2),
	}
}

// NotFound creates a not-found error for the named resource.
func NotFound(resource string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Stack:   captureStack(2),
	}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Stack:   captureStack(2),
	}
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field, message string) *Error {
	e := &Error{
		Code:    CodeValidation,
		Message: message,
		Stack:   captureStack(2),
	}
	return e.WithField("field", field)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Timeout creates a timeout error for the named operation.
func Timeout(op string) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out", op),
		Stack:   captureStack(2),
	}
}

// Unavailable creates an unavailable error for the named dependency.
func Unavailable(service string) *Error {
	return &Error{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("%s unavailable", service),
		Stack:   captureStack(2),
	}
}

// Staging creates a staging error.
func Staging(message string) *Error {
	return &Error{
		Code:    CodeStaging,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Backpressure creates a queue-full rejection error.
func Backpressure() *Error {
	return &Error{
		Code:    CodeBackpressure,
		Message: "queue is full",
		Stack:   captureStack(2),
	}
}

// Transcode creates a transcode failure carrying the exit code and a
// bounded excerpt of the tool's diagnostic output.
func Transcode(exitCode int, excerpt string) *Error {
	e := &Error{
		Code:    CodeTranscode,
		Message: fmt.Sprintf("ffmpeg exited with %d", exitCode),
		Stack:   captureStack(2),
	}
	e.WithField("exit_code", exitCode)
	if excerpt != "" {
		e.Message = fmt.Sprintf("ffmpeg exited with %d: %s", exitCode, excerpt)
		e.WithField("stderr", excerpt)
	}
	return e
}

// Cancelled creates a cancellation error.
func Cancelled(op string) *Error {
	return &Error{
		Code:    CodeCancelled,
		Message: fmt.Sprintf("%s cancelled", op),
		Stack:   captureStack(2),
	}
}

// QuotaExhausted creates a no-credits error.
func QuotaExhausted() *Error {
	return &Error{
		Code:    CodeQuotaExhausted,
		Message: "no remaining credits or active plan",
		Stack:   captureStack(2),
	}
}

// PayloadTooLarge creates a size-limit error.
func PayloadTooLarge(limit int64) *Error {
	e := &Error{
		Code:    CodePayloadTooLarge,
		Message: "payload exceeds size limit",
		Stack:   captureStack(2),
	}
	return e.WithField("limit_bytes", limit)
}

// RateLimited creates a rate-limit rejection error.
func RateLimited() *Error {
	return &Error{
		Code:    CodeRateLimited,
		Message: "too many requests",
		Stack:   captureStack(2),
	}
}

// GetCode extracts the code from an error, defaulting to CodeInternal.
func GetCode(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetFields extracts the context fields from an error.
func GetFields(err error) map[string]any {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}

// IsCode reports whether the error has the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// captureStack captures up to 10 stack frames, skipping runtime internals.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var result []Frame
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			result = append(result, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more || len(result) >= 10 {
			break
		}
	}
	return result
}

// As is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
