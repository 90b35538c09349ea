package gitrepo

import (
	"errors"
	"fmt"
)

// ErrorCode classifies repository inspection failures.
type ErrorCode int

const (
	// CodeNotARepository means the target directory has no git metadata.
	CodeNotARepository ErrorCode = iota + 1

	// CodeGitUnavailable means no git binary was found on PATH.
	CodeGitUnavailable

	// CodeCommandFailed means git ran but exited non-zero.
	CodeCommandFailed

	// CodeIO wraps filesystem errors during inspection.
	CodeIO
)

// String returns the human-readable code name.
func (c ErrorCode) String() string {
	switch c {
	case CodeNotARepository:
		return "NotARepository"
	case CodeGitUnavailable:
		return "GitUnavailable"
	case CodeCommandFailed:
		return "CommandFailed"
	case CodeIO:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the typed failure returned by inspection operations.
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

// CodeOf extracts the ErrorCode from err, or 0 for foreign errors.
func CodeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

func newNotARepository(path string) *Error {
	return &Error{Code: CodeNotARepository, Message: "not a git repository", Path: path}
}

func newGitUnavailable(cause error) *Error {
	return &Error{Code: CodeGitUnavailable, Message: "git binary not found on PATH", Err: cause}
}

func newCommandFailed(path string, args []string, stderr string, cause error) *Error {
	return &Error{
		Code:    CodeCommandFailed,
		Message: fmt.Sprintf("git %v: %s", args, stderr),
		Path:    path,
		Err:     cause,
	}
}

func newIO(path string, cause error) *Error {
	return &Error{Code: CodeIO, Message: cause.Error(), Path: path, Err: cause}
}
