package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Config directory shape errors
	ErrDirMissing          ErrorCode = "DIR_MISSING"
	ErrNotADir             ErrorCode = "NOT_A_DIR"
	ErrSymlinkMissing      ErrorCode = "SYMLINK_MISSING"
	ErrNotASymlink         ErrorCode = "NOT_A_SYMLINK"
	ErrSymlinkWrongTarget  ErrorCode = "SYMLINK_WRONG_TARGET"
	ErrFileMissing         ErrorCode = "FILE_MISSING"
	ErrCanonicalMissing    ErrorCode = "CANONICAL_MISSING"
	ErrFileContentMismatch ErrorCode = "FILE_CONTENT_MISMATCH"

	// Repository and overlay errors
	ErrRepositoryCheck            ErrorCode = "REPOSITORY_CHECK"
	ErrOverlayCheck               ErrorCode = "OVERLAY_CHECK"
	ErrPrivateOverlayInaccessible ErrorCode = "PRIVATE_OVERLAY_INACCESSIBLE"

	// Execution errors
	ErrPatchFailed   ErrorCode = "PATCH_FAILED"
	ErrCommandFailed ErrorCode = "COMMAND_FAILED"

	// Installed package and filesystem errors
	ErrContentsMissing ErrorCode = "CONTENTS_MISSING"
	ErrIntegrity       ErrorCode = "INTEGRITY"
	ErrCruft           ErrorCode = "CRUFT"
	ErrLayout          ErrorCode = "LAYOUT"

	// Machine errors
	ErrHardware ErrorCode = "HARDWARE"
	ErrBoot     ErrorCode = "BOOT"
	ErrSystem   ErrorCode = "SYSTEM"

	// Checker errors
	ErrDomainFailed ErrorCode = "DOMAIN_FAILED"
)

var structuralCodes = map[ErrorCode]bool{
	ErrDirMissing:          true,
	ErrNotADir:             true,
	ErrSymlinkMissing:      true,
	ErrNotASymlink:         true,
	ErrSymlinkWrongTarget:  true,
	ErrFileMissing:         true,
	ErrCanonicalMissing:    true,
	ErrFileContentMismatch: true,
}

// FmError represents a structured error with code and details
type FmError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *FmError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *FmError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *FmError) Is(target error) bool {
	var targetErr *FmError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new FmError with the given code and message
func New(code ErrorCode, message string) *FmError {
	return &FmError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new FmError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *FmError {
	return &FmError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a FmError
func Wrap(err error, code ErrorCode, message string) *FmError {
	if err == nil {
		return nil
	}
	return &FmError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *FmError {
	if err == nil {
		return nil
	}
	return &FmError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *FmError) WithDetail(key string, value interface{}) *FmError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var fmErr *FmError
	if errors.As(err, &fmErr) {
		return fmErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a FmError
func GetErrorCode(err error) ErrorCode {
	var fmErr *FmError
	if errors.As(err, &fmErr) {
		return fmErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a FmError
func GetErrorDetails(err error) map[string]interface{} {
	var fmErr *FmError
	if errors.As(err, &fmErr) {
		return fmErr.Details
	}
	return nil
}

// IsStructural reports whether err describes a config directory whose shape
// is wrong. These are always recoverable by autofix.
func IsStructural(err error) bool {
	return structuralCodes[GetErrorCode(err)]
}

// Join is errors.Join, re-exported so callers need a single errors import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// As is errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Split flattens an error built with Join into its parts. A nil error
// yields nothing and any other error yields itself.
func Split(err error) []error {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, Split(e)...)
	}
	return out
}
