// Package fstxn implements the transactional filesystem engine: it
// plans, executes, and on failure reverses ordered sets of filesystem
// mutations. Every step is authorized through a capability before
// planning completes and accounted to the audit log while staging.
//
// A transaction moves Planned → Staging → Committed or RolledBack.
// While staging it holds the exclusive subtree lock for its
// capability's root, so transactions on overlapping subtrees never
// interleave. Destination writes are temp-then-rename and deletions are
// quarantine moves, which is what makes full reversal possible.
package fstxn

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/polysafe/fsguard/internal/logger"
	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/capability"
)

// Metrics is the instrumentation hook for the engine. A nil Metrics
// disables instrumentation.
type Metrics interface {
	// RecordAuthorization is called once per planned operation.
	RecordAuthorization(allowed bool)

	// RecordStep is called once per staged step.
	RecordStep(kind string, ok bool)

	// RecordTransaction is called once per terminal transaction state:
	// "committed", "rolled_back", "rollback_failed" or "aborted".
	RecordTransaction(outcome string)
}

// Config carries engine tunables.
type Config struct {
	// Retry bounds transient IO retries during staging. Zero value
	// means DefaultRetryPolicy.
	Retry RetryPolicy
}

// Engine plans and executes filesystem transactions. One engine serves
// any number of transactions; per-subtree exclusion comes from the
// shared SubtreeLocks registry.
type Engine struct {
	cfg     Config
	log     *audit.Log
	locks   *SubtreeLocks
	metrics Metrics
}

// NewEngine creates an engine writing to log and coordinating through
// locks. metrics may be nil.
func NewEngine(cfg Config, log *audit.Log, locks *SubtreeLocks, metrics Metrics) *Engine {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Engine{cfg: cfg, log: log, locks: locks, metrics: metrics}
}

// Locks returns the engine's subtree lock registry.
func (e *Engine) Locks() *SubtreeLocks {
	return e.locks
}

// Plan authorizes every operation against cap and builds the journal.
// Nothing touches the filesystem: any authorization failure aborts
// planning with no side effects beyond a Denied audit entry.
//
// Plan also validates cross-step ordering: an operation targeting a
// path beneath a directory that neither exists nor is created by an
// earlier OpMkdir step is rejected with OrderViolation.
func (e *Engine) Plan(cap *capability.Capability, ops []Op) (*Transaction, error) {
	t := &Transaction{
		id:     uuid.NewString(),
		engine: e,
		cap:    cap,
		state:  StatePlanned,
	}
	t.quarantineDir = filepath.Join(cap.Root(), quarantineDirName, t.id)

	plannedDirs := make(map[string]string)  // cleaned rel -> canonical abs
	plannedFiles := make(map[string]string) // cleaned rel -> canonical abs

	for i, op := range ops {
		step, err := e.planStep(cap, i, op, plannedDirs, plannedFiles)
		e.recordAuthorization(err == nil)
		if err != nil {
			e.logDenied(cap, op, err)
			return nil, err
		}

		switch op.Kind {
		case OpMkdir:
			plannedDirs[cleanRel(op.Path)] = step.path
		case OpWriteFile, OpCopyFile, OpMoveFile:
			plannedFiles[cleanRel(op.Path)] = step.path
		}
		t.journal = append(t.journal, step)
	}

	logger.Debug("transaction planned",
		logger.KeyTxnID, t.id,
		logger.KeyCapability, cap.ID(),
		"steps", len(t.journal))
	return t, nil
}

// planStep authorizes and resolves a single operation.
func (e *Engine) planStep(
	cap *capability.Capability,
	idx int,
	op Op,
	plannedDirs, plannedFiles map[string]string,
) (*journalEntry, error) {
	if err := validateRel(op.Path); err != nil {
		return nil, err
	}
	if op.Kind == OpCopyFile || op.Kind == OpMoveFile {
		if err := validateRel(op.Source); err != nil {
			return nil, err
		}
	}

	step := &journalEntry{
		kind:      op.Kind,
		relPath:   op.Path,
		relSource: op.Source,
		content:   op.Content,
	}

	switch op.Kind {
	case OpWriteFile:
		path, err := e.resolveCreate(cap, idx, op.Path, capability.PermWrite, plannedDirs)
		if err != nil {
			return nil, err
		}
		step.path = path

	case OpCopyFile:
		src, err := e.resolveExisting(cap, op.Source, capability.PermRead, plannedFiles)
		if err != nil {
			return nil, err
		}
		dst, err := e.resolveCreate(cap, idx, op.Path, capability.PermWrite, plannedDirs)
		if err != nil {
			return nil, err
		}
		step.source, step.path = src, dst

	case OpMoveFile:
		src, err := e.resolveExisting(cap, op.Source, capability.PermWrite, plannedFiles)
		if err != nil {
			return nil, err
		}
		dst, err := e.resolveCreate(cap, idx, op.Path, capability.PermWrite, plannedDirs)
		if err != nil {
			return nil, err
		}
		step.source, step.path = src, dst

	case OpMkdir:
		path, err := e.resolveCreate(cap, idx, op.Path, capability.PermCreateDir, plannedDirs)
		if err != nil {
			return nil, err
		}
		step.path = path

	case OpDeleteFile, OpDeleteDir:
		path, err := e.resolveExisting(cap, op.Path, capability.PermDelete, nil)
		if err != nil {
			return nil, err
		}
		step.path = path

	default:
		return nil, newOrderViolation(idx, op.Path)
	}

	return step, nil
}

// resolveCreate resolves a creation target, accepting parents that an
// earlier step of the same transaction creates.
func (e *Engine) resolveCreate(
	cap *capability.Capability,
	idx int,
	rel string,
	perm capability.Permissions,
	plannedDirs map[string]string,
) (string, error) {
	path, err := cap.AuthorizeCreate(rel, perm)
	if err == nil {
		return path, nil
	}
	if capability.CodeOf(err) != capability.CodeNotFound {
		return "", err
	}

	// The parent does not exist on disk. It is only acceptable if an
	// earlier mkdir step creates it.
	clean := cleanRel(rel)
	if parent, ok := plannedDirs[filepath.Dir(clean)]; ok {
		return filepath.Join(parent, filepath.Base(clean)), nil
	}
	return "", newOrderViolation(idx, rel)
}

// resolveExisting resolves a path that must exist at execution time:
// either on disk now, or produced by an earlier step.
func (e *Engine) resolveExisting(
	cap *capability.Capability,
	rel string,
	perm capability.Permissions,
	plannedFiles map[string]string,
) (string, error) {
	path, err := cap.Authorize(rel, perm)
	if err == nil {
		return path, nil
	}
	if capability.CodeOf(err) == capability.CodeNotFound && plannedFiles != nil {
		if p, ok := plannedFiles[cleanRel(rel)]; ok {
			return p, nil
		}
	}
	return "", err
}

// logDenied records an attempted-but-denied operation.
func (e *Engine) logDenied(cap *capability.Capability, op Op, cause error) {
	rec := audit.Record{
		Op:           op.Kind.String(),
		Outcome:      audit.OutcomeDenied,
		CapabilityID: cap.ID(),
		Detail:       cause.Error(),
	}
	if op.Source != "" {
		rec.Path, rec.Dest = op.Source, op.Path
	} else {
		rec.Path = op.Path
	}

	if _, err := e.log.Append(rec); err != nil {
		logger.Error("failed to record denied operation",
			logger.KeyOp, rec.Op, logger.KeyError, err)
	}
}

func (e *Engine) recordAuthorization(allowed bool) {
	if e.metrics != nil {
		e.metrics.RecordAuthorization(allowed)
	}
}

func (e *Engine) recordStep(kind OpKind, ok bool) {
	if e.metrics != nil {
		e.metrics.RecordStep(kind.String(), ok)
	}
}

func (e *Engine) recordTransaction(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordTransaction(outcome)
	}
}

// validateRel rejects paths that cannot name a step target: absolute
// paths, the root itself, and anything inside the quarantine area.
func validateRel(rel string) error {
	clean := cleanRel(rel)
	if filepath.IsAbs(rel) || clean == "." || clean == ".." {
		return &capability.Error{
			Code:    capability.CodePathEscape,
			Message: "operation target must be a proper relative path",
			Path:    rel,
		}
	}
	if clean == quarantineDirName || strings.HasPrefix(clean, quarantineDirName+string(filepath.Separator)) {
		return &capability.Error{
			Code:    capability.CodeDenied,
			Message: "quarantine area is engine-internal",
			Path:    rel,
		}
	}
	return nil
}

func cleanRel(rel string) string {
	return filepath.Clean(rel)
}
