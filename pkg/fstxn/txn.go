package fstxn

import (
	"context"
	"fmt"
	"time"

	"github.com/polysafe/fsguard/internal/logger"
	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/capability"
)

// Transaction is a planned set of filesystem mutations. It is produced
// by Engine.Plan and driven to a terminal state by exactly one call to
// Commit or Abort. A Transaction is not safe for concurrent use.
type Transaction struct {
	id     string
	engine *Engine
	cap    *capability.Capability

	journal       []*journalEntry
	state         State
	quarantineDir string
}

// ID returns the transaction identifier used in audit entries and logs.
func (t *Transaction) ID() string {
	return t.id
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	return t.state
}

// Steps returns the number of planned steps.
func (t *Transaction) Steps() int {
	return len(t.journal)
}

// Commit executes the journal in order under the exclusive subtree lock
// for the capability's root. On the first step failure it reverses all
// applied steps in reverse order and returns StepFailed. If reversal
// itself fails the subtree is frozen and RollbackFailed is returned
// with the paths left unreversed.
//
// ctx is consulted between steps; cancellation mid-commit triggers the
// same rollback path as a step failure. Reversal itself never honors
// cancellation.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.state != StatePlanned {
		return newInvalidState("commit", t.state)
	}
	if err := t.acquireRoot(); err != nil {
		return err
	}
	t.state = StateStaging

	start := time.Now()
	ctx = logger.WithContext(ctx, logger.NewOpContext(t.id, t.cap.ID()))
	logger.InfoCtx(ctx, "staging transaction", "steps", len(t.journal))

	for i, step := range t.journal {
		if err := ctx.Err(); err != nil {
			return t.rollback(ctx, i, step, err)
		}

		err := t.engine.cfg.Retry.do(ctx, func() error {
			return t.apply(i, step)
		})
		t.engine.recordStep(step.kind, err == nil)

		if logErr := t.logStep(step, err); logErr != nil && err == nil {
			// The step applied but its audit entry did not land. The
			// trail must cover every applied step, so reverse it.
			err = logErr
		}
		if err != nil {
			logger.WarnCtx(ctx, "step failed, rolling back",
				logger.KeyOp, step.kind.String(),
				logger.KeyPath, step.relPath,
				logger.KeyError, err)
			return t.rollback(ctx, i+1, step, err)
		}
	}

	if err := t.purgeQuarantine(); err != nil {
		logger.WarnCtx(ctx, "failed to purge quarantine", logger.KeyError, err)
	}
	t.logTerminal("commit", audit.OutcomeCommitted, "")
	t.state = StateCommitted
	t.releaseRoot()
	t.engine.recordTransaction("committed")

	logger.InfoCtx(ctx, "transaction committed",
		"steps", len(t.journal),
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// Abort discards a planned transaction without touching the
// filesystem. Only valid while Planned.
func (t *Transaction) Abort() error {
	if t.state != StatePlanned {
		return newInvalidState("abort", t.state)
	}
	t.state = StateAborted
	t.logTerminal("abort", audit.OutcomeAborted, "")
	t.engine.recordTransaction("aborted")
	logger.Debug("transaction aborted", logger.KeyTxnID, t.id)
	return nil
}

// rollback reverses the first upTo journal entries in reverse order.
// failed is the step whose application (or audit) broke the commit and
// cause is its error; both shape the returned StepFailed.
func (t *Transaction) rollback(ctx context.Context, upTo int, failed *journalEntry, cause error) error {
	for j := upTo - 1; j >= 0; j-- {
		step := t.journal[j]
		// A step that never applied can still hold a quarantined
		// original from a failed overwrite; that backup must be
		// restored before the quarantine directory is purged.
		if !step.applied && !step.backedUp {
			continue
		}
		// Reversal must run to completion even when the caller's
		// context is already cancelled.
		err := t.engine.cfg.Retry.do(context.Background(), func() error {
			return t.undo(step)
		})
		if err != nil {
			return t.failRollback(ctx, j, err)
		}
	}

	if err := t.purgeQuarantine(); err != nil {
		logger.WarnCtx(ctx, "failed to purge quarantine", logger.KeyError, err)
	}
	t.logTerminal("rollback", audit.OutcomeRolledBack, cause.Error())
	t.state = StateRolledBack
	t.releaseRoot()
	t.engine.recordTransaction("rolled_back")

	logger.InfoCtx(ctx, "transaction rolled back", logger.KeyError, cause)
	return newStepFailed(t.stepIndex(failed), failed.kind.String(), cause)
}

// failRollback handles the unrecoverable case: an undo failed, so the
// subtree is in a partially reversed state. The root is frozen until an
// operator intervenes, and the transaction stays in Staging.
func (t *Transaction) failRollback(ctx context.Context, undoneUpTo int, cause error) error {
	var unreversed []string
	for j := 0; j <= undoneUpTo; j++ {
		if t.journal[j].applied || t.journal[j].backedUp {
			unreversed = append(unreversed, t.journal[j].relPath)
		}
	}

	t.engine.locks.Freeze(t.cap.Root(), t.id)
	t.releaseRoot()
	t.logTerminal("rollback", audit.OutcomeFailed,
		fmt.Sprintf("rollback failed, subtree frozen: %v", cause))
	t.engine.recordTransaction("rollback_failed")

	logger.ErrorCtx(ctx, "rollback failed, subtree frozen",
		logger.KeyPath, t.cap.Root(),
		"unreversed", len(unreversed),
		logger.KeyError, cause)
	return newRollbackFailed(undoneUpTo, unreversed, cause)
}

// logStep appends one audit entry for an attempted step.
func (t *Transaction) logStep(step *journalEntry, applyErr error) error {
	rec := audit.Record{
		Op:           step.kind.String(),
		Outcome:      audit.OutcomeAllowed,
		CapabilityID: t.cap.ID(),
		Detail:       t.id,
	}
	if step.relSource != "" {
		rec.Path, rec.Dest = step.relSource, step.relPath
	} else {
		rec.Path = step.relPath
	}
	if applyErr != nil {
		rec.Outcome = audit.OutcomeFailed
		rec.Detail = fmt.Sprintf("%s: %v", t.id, applyErr)
	}

	if _, err := t.engine.log.Append(rec); err != nil {
		return newIO("audit append", err)
	}
	return nil
}

// logTerminal records the transaction's terminal outcome. Failures are
// logged but not surfaced: the filesystem outcome is already decided.
func (t *Transaction) logTerminal(op string, outcome audit.Outcome, detail string) {
	if detail == "" {
		detail = t.id
	} else {
		detail = t.id + ": " + detail
	}
	_, err := t.engine.log.Append(audit.Record{
		Op:           op,
		Outcome:      outcome,
		CapabilityID: t.cap.ID(),
		Detail:       detail,
	})
	if err != nil {
		logger.Error("failed to record transaction outcome",
			logger.KeyTxnID, t.id, logger.KeyOp, op, logger.KeyError, err)
	}
}

func (t *Transaction) acquireRoot() error {
	return t.engine.locks.Acquire(t.cap.Root())
}

func (t *Transaction) releaseRoot() {
	t.engine.locks.Release(t.cap.Root())
}

func (t *Transaction) stepIndex(step *journalEntry) int {
	for i, s := range t.journal {
		if s == step {
			return i
		}
	}
	return -1
}
