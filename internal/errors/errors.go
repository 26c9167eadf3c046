package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode int

const (
	// Client errors (4xx)
	ErrCodeBadRequest   ErrorCode = 400
	ErrCodeUnauthorized ErrorCode = 401
	ErrCodeNotFound     ErrorCode = 404

	// Server errors (5xx)
	ErrCodeInternal ErrorCode = 500

	// Cipher errors
	ErrCodeInvalidKey ErrorCode = 520
	ErrCodeIO         ErrorCode = 530
	ErrCodeUsage      ErrorCode = 540
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, status int, message string, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Cause:      cause,
	}
}

// NewBadRequest creates a bad request error
func NewBadRequest(message string) *AppError {
	return newError(ErrCodeBadRequest, http.StatusBadRequest, message, nil)
}

// NewBadRequestWithCause creates a bad request error with cause
func NewBadRequestWithCause(message string, cause error) *AppError {
	return newError(ErrCodeBadRequest, http.StatusBadRequest, message, cause)
}

// NewUnauthorized creates an unauthorized error
func NewUnauthorized(message string) *AppError {
	return newError(ErrCodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// NewNotFound creates a not found error
func NewNotFound(message string) *AppError {
	return newError(ErrCodeNotFound, http.StatusNotFound, message, nil)
}

// NewInternalWithCause creates an internal server error with cause
func NewInternalWithCause(message string, cause error) *AppError {
	return newError(ErrCodeInternal, http.StatusInternalServerError, message, cause)
}

// NewInvalidKey creates a key validation error. No output may be produced after it.
func NewInvalidKey(message string, cause error) *AppError {
	return newError(ErrCodeInvalidKey, http.StatusBadRequest, message, cause)
}

// NewIOError creates an error for an unreadable source or unwritable sink
func NewIOError(message string, cause error) *AppError {
	return newError(ErrCodeIO, http.StatusInternalServerError, message, cause)
}

// NewUsage creates a command line usage error
func NewUsage(message string) *AppError {
	return newError(ErrCodeUsage, http.StatusBadRequest, message, nil)
}

// CodeOf returns the code of the first AppError in err's chain
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// ToHTTPStatus converts an error to HTTP status code
func ToHTTPStatus(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// ExitCode maps an error to a process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
