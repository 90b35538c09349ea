package audit

import (
	"errors"
	"fmt"
	"io"
)

// ErrClosed is returned when operating on a closed log.
var ErrClosed = errors.New("audit log is closed")

// ErrorCode classifies audit log failures.
type ErrorCode int

const (
	// CodeTamperDetected indicates an entry's stored hash does not match
	// its recomputed hash: the entry was altered after being written.
	CodeTamperDetected ErrorCode = iota + 1

	// CodeChainBroken indicates an entry's prevHash does not match the
	// hash of its predecessor.
	CodeChainBroken

	// CodeCorrupted indicates the file could not be decoded as a
	// sequence of records (truncated or malformed framing).
	CodeCorrupted

	// CodeIO indicates an underlying storage error.
	CodeIO
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeTamperDetected:
		return "TamperDetected"
	case CodeChainBroken:
		return "ChainBroken"
	case CodeCorrupted:
		return "Corrupted"
	case CodeIO:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the typed failure returned by audit log operations.
// Sequence identifies the first offending entry for integrity failures.
type Error struct {
	Code     ErrorCode
	Sequence uint64
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeTamperDetected, CodeChainBroken:
		return fmt.Sprintf("%s at sequence %d: %s", e.Code, e.Sequence, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or 0 if err is not an audit error.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}

func newTamperDetected(seq uint64) *Error {
	return &Error{Code: CodeTamperDetected, Sequence: seq, Message: "entry hash mismatch"}
}

func newChainBroken(seq uint64) *Error {
	return &Error{Code: CodeChainBroken, Sequence: seq, Message: "prevHash does not match predecessor"}
}

func newCorrupted(msg string) *Error {
	return &Error{Code: CodeCorrupted, Message: msg}
}

// newTornTail marks a record cut short by end of file. It carries
// io.ErrUnexpectedEOF so Open can tell a recoverable tear apart from
// other corruption.
func newTornTail(msg string) *Error {
	return &Error{Code: CodeCorrupted, Message: msg, Err: io.ErrUnexpectedEOF}
}

func newIO(msg string, cause error) *Error {
	return &Error{Code: CodeIO, Message: msg, Err: cause}
}
