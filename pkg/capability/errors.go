package capability

import (
	"errors"
	"fmt"
)

// ErrorCode classifies capability and path-guard failures.
type ErrorCode int

const (
	// CodeInvalidRoot indicates the requested root is not an existing
	// directory or could not be canonicalized.
	CodeInvalidRoot ErrorCode = iota + 1

	// CodePathEscape indicates a path resolves outside the capability root.
	CodePathEscape

	// CodePermissionEscalation indicates a derive attempt requested
	// permissions not held by the parent capability.
	CodePermissionEscalation

	// CodeSymlinkLoop indicates canonicalization hit a symlink cycle.
	CodeSymlinkLoop

	// CodeDenied indicates the capability lacks the required permission.
	CodeDenied

	// CodeNotFound indicates the target path does not exist.
	CodeNotFound

	// CodeIO indicates an underlying filesystem error during resolution.
	CodeIO
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidRoot:
		return "InvalidRoot"
	case CodePathEscape:
		return "PathEscape"
	case CodePermissionEscalation:
		return "PermissionEscalation"
	case CodeSymlinkLoop:
		return "SymlinkLoop"
	case CodeDenied:
		return "Denied"
	case CodeNotFound:
		return "NotFound"
	case CodeIO:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the typed failure returned by all guard operations.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or 0 if err is not a guard error.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func newInvalidRoot(path string, cause error) *Error {
	return &Error{Code: CodeInvalidRoot, Message: "not a canonicalizable directory", Path: path, Err: cause}
}

func newPathEscape(root, attempted string) *Error {
	return &Error{
		Code:    CodePathEscape,
		Message: fmt.Sprintf("path escapes capability root %s", root),
		Path:    attempted,
	}
}

func newPermissionEscalation(requested, have Permissions) *Error {
	return &Error{
		Code:    CodePermissionEscalation,
		Message: fmt.Sprintf("requested %s exceeds granted %s", requested, have),
	}
}

func newDenied(perm Permissions, have Permissions, path string) *Error {
	return &Error{
		Code:    CodeDenied,
		Message: fmt.Sprintf("%s not granted (have %s)", perm, have),
		Path:    path,
	}
}

func newSymlinkLoop(path string, cause error) *Error {
	return &Error{Code: CodeSymlinkLoop, Message: "symlink cycle during canonicalization", Path: path, Err: cause}
}

func newNotFound(path string, cause error) *Error {
	return &Error{Code: CodeNotFound, Message: "path does not exist", Path: path, Err: cause}
}

func newIO(path string, cause error) *Error {
	return &Error{Code: CodeIO, Message: "filesystem error during resolution", Path: path, Err: cause}
}
