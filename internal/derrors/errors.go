// Package derrors defines stable error codes for driftmap failure modes.
//
// Only configuration-time failures are allowed to escape the analysis
// entry point; everything else is degraded at its call site. The typed
// error here carries the stable code that CLI output and callers key on.
package derrors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ConfigInvalid indicates a malformed or out-of-range configuration value
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// CredentialsMissing indicates a selected provider lacks required credentials
	CredentialsMissing ErrorCode = "CREDENTIALS_MISSING"
	// ProviderUnknown indicates an unrecognized vector provider tag
	ProviderUnknown ErrorCode = "PROVIDER_UNKNOWN"
	// ProviderUnavailable indicates a selected backend could not be constructed
	ProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// EncoderUnavailable indicates the embedding encoder cannot run in this build
	EncoderUnavailable ErrorCode = "ENCODER_UNAVAILABLE"
	// CacheCorrupt indicates the content cache had to be rebuilt from scratch
	CacheCorrupt ErrorCode = "CACHE_CORRUPT"
	// DownloadFailed indicates a model or vocabulary fetch failed
	DownloadFailed ErrorCode = "DOWNLOAD_FAILED"
	// VCSUnavailable indicates git is missing or the repository has no usable refs
	VCSUnavailable ErrorCode = "VCS_UNAVAILABLE"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a driftmap error with a stable code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// New creates a new Error without an underlying cause.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the stable code from err, unwrapping as needed.
// Returns InternalError for non-driftmap errors and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return InternalError
}

// IsConfig reports whether err is a construction-time configuration failure,
// the only class allowed to propagate out of analysis.
func IsConfig(err error) bool {
	switch CodeOf(err) {
	case ConfigInvalid, CredentialsMissing, ProviderUnknown:
		return true
	}
	return false
}
