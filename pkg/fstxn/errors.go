package fstxn

import (
	"errors"
	"fmt"
)

// ErrorCode classifies transaction engine failures.
type ErrorCode int

const (
	// CodeStepFailed indicates a staging step failed and the transaction
	// was rolled back.
	CodeStepFailed ErrorCode = iota + 1

	// CodeRollbackFailed indicates a step failed AND reversing earlier
	// steps also failed. Durable state and the audit trail may disagree;
	// the capability's root subtree is frozen until manually resolved.
	CodeRollbackFailed

	// CodeOrderViolation indicates the planned steps have a cross-step
	// ordering problem, such as writing into a directory no earlier step
	// creates.
	CodeOrderViolation

	// CodeInvalidState indicates an operation not permitted in the
	// transaction's current state.
	CodeInvalidState

	// CodeSubtreeBusy indicates another transaction is staging on an
	// overlapping subtree.
	CodeSubtreeBusy

	// CodeSubtreeFrozen indicates the subtree was frozen by an earlier
	// rollback failure.
	CodeSubtreeFrozen

	// CodeIO indicates a terminal IO failure after bounded retries.
	CodeIO
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeStepFailed:
		return "StepFailed"
	case CodeRollbackFailed:
		return "RollbackFailed"
	case CodeOrderViolation:
		return "OrderViolation"
	case CodeInvalidState:
		return "InvalidState"
	case CodeSubtreeBusy:
		return "SubtreeBusy"
	case CodeSubtreeFrozen:
		return "SubtreeFrozen"
	case CodeIO:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the typed failure returned by engine operations.
type Error struct {
	Code    ErrorCode
	Message string
	// Step is the index of the offending step, where applicable.
	Step int
	// Unreversed lists the canonical paths of steps that could not be
	// reversed after a rollback failure.
	Unreversed []string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Unreversed) > 0 {
		msg = fmt.Sprintf("%s (unreversed: %v)", msg, e.Unreversed)
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or 0 if err is not an engine error.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

func newStepFailed(step int, op string, cause error) *Error {
	return &Error{
		Code:    CodeStepFailed,
		Message: fmt.Sprintf("step %d (%s) failed: %v", step, op, cause),
		Step:    step,
		Err:     cause,
	}
}

func newRollbackFailed(step int, unreversed []string, cause error) *Error {
	return &Error{
		Code:       CodeRollbackFailed,
		Message:    fmt.Sprintf("rollback after failed step %d could not be completed: %v", step, cause),
		Step:       step,
		Unreversed: unreversed,
		Err:        cause,
	}
}

func newOrderViolation(step int, path string) *Error {
	return &Error{
		Code:    CodeOrderViolation,
		Message: fmt.Sprintf("step %d targets %s inside a directory no earlier step creates", step, path),
		Step:    step,
	}
}

func newInvalidState(op string, state State) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("%s not permitted in state %s", op, state),
	}
}

func newSubtreeBusy(root string) *Error {
	return &Error{
		Code:    CodeSubtreeBusy,
		Message: fmt.Sprintf("another transaction is staging under %s", root),
	}
}

func newSubtreeFrozen(root string) *Error {
	return &Error{
		Code:    CodeSubtreeFrozen,
		Message: fmt.Sprintf("subtree %s is frozen pending manual resolution", root),
	}
}

func newIO(msg string, cause error) *Error {
	return &Error{Code: CodeIO, Message: fmt.Sprintf("%s: %v", msg, cause), Err: cause}
}
