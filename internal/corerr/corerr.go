// Package corerr defines the tagged error type that every internal layer
// returns. The HTTP layer is the only place that maps a Code to a status.
package corerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	Unauthorized     Code = "UNAUTHORIZED"
	InvalidToken     Code = "INVALID_TOKEN"
	TokenExpired     Code = "TOKEN_EXPIRED"
	PodMismatch      Code = "POD_MISMATCH"
	Forbidden        Code = "FORBIDDEN"
	NotFound         Code = "NOT_FOUND"
	PodNotFound      Code = "POD_NOT_FOUND"
	StreamNotFound   Code = "STREAM_NOT_FOUND"
	RecordNotFound   Code = "RECORD_NOT_FOUND"
	PodExists        Code = "POD_EXISTS"
	StreamExists     Code = "STREAM_ALREADY_EXISTS"
	NameExists       Code = "NAME_EXISTS"
	NameConflict     Code = "NAME_CONFLICT"
	InvalidInput     Code = "INVALID_INPUT"
	InvalidName      Code = "INVALID_NAME"
	InvalidPodID     Code = "INVALID_POD_ID"
	InvalidIndex     Code = "INVALID_INDEX"
	InvalidContent   Code = "INVALID_CONTENT"
	ContentTooLarge  Code = "CONTENT_TOO_LARGE"
	ValidationError  Code = "VALIDATION_ERROR"
	RateLimited      Code = "RATE_LIMIT_EXCEEDED"
	Internal         Code = "INTERNAL_ERROR"
	Database         Code = "DATABASE_ERROR"
	Storage          Code = "STORAGE_ERROR"
)

// Error is the tagged result every internal layer returns for failure paths.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the wire code from err, defaulting to Internal when err
// does not carry one (or is nil, in which case CodeOf returns "").
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err is tagged with code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
