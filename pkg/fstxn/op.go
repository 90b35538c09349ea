package fstxn

import "fmt"

// OpKind identifies a filesystem mutation the engine can stage.
type OpKind int

const (
	// OpWriteFile writes Content to Path atomically, replacing any
	// existing file (the original is quarantined until commit).
	OpWriteFile OpKind = iota + 1

	// OpCopyFile copies Source to Path atomically.
	OpCopyFile

	// OpMoveFile renames Source to Path. The destination must not exist.
	OpMoveFile

	// OpMkdir creates the directory Path. The parent must exist or be
	// created by an earlier step.
	OpMkdir

	// OpDeleteFile removes the file at Path by quarantining it.
	OpDeleteFile

	// OpDeleteDir removes the directory tree at Path by quarantining it
	// whole.
	OpDeleteDir
)

// String returns the audit descriptor name for the op kind.
func (k OpKind) String() string {
	switch k {
	case OpWriteFile:
		return "write-file"
	case OpCopyFile:
		return "copy-file"
	case OpMoveFile:
		return "move-file"
	case OpMkdir:
		return "mkdir"
	case OpDeleteFile:
		return "delete-file"
	case OpDeleteDir:
		return "delete-dir"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Op is a single logical operation submitted to Plan. All paths are
// relative to the authorizing capability's root.
type Op struct {
	Kind OpKind

	// Path is the primary target: destination for writes, copies and
	// moves, the victim for deletes, the new directory for mkdir.
	Path string

	// Source is the origin path for copy and move operations.
	Source string

	// Content is the data for OpWriteFile.
	Content []byte
}

// State is the lifecycle position of a transaction.
type State int

const (
	// StatePlanned means steps are built and authorized, nothing executed.
	StatePlanned State = iota + 1

	// StateStaging means steps are executing in order.
	StateStaging

	// StateCommitted means all steps succeeded and were finalized.
	StateCommitted

	// StateRolledBack means a step failed and prior steps were reversed.
	StateRolledBack

	// StateAborted means the planned journal was discarded before any
	// step executed.
	StateAborted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePlanned:
		return "Planned"
	case StateStaging:
		return "Staging"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}
