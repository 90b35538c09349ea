// journal.go holds the staged step representation and the per-step
// apply/undo primitives. Every destination write is temp-then-rename,
// and every delete is a rename into the transaction's quarantine
// directory, so each applied step carries enough recorded state to be
// reversed exactly.
package fstxn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// quarantineDirName is the per-root directory holding quarantined
// files of in-flight transactions.
const quarantineDirName = ".fsguard-quarantine"

// journalEntry is one authorized, resolved step of a transaction.
type journalEntry struct {
	kind OpKind

	// relPath and relSource are the caller-supplied paths, kept for
	// audit records.
	relPath   string
	relSource string

	// path and source are the canonical absolute locations resolved at
	// plan time.
	path   string
	source string

	content []byte

	// Undo state recorded while applying.
	applied        bool
	backedUp       bool   // an existing destination was quarantined
	quarantinePath string // where the victim or overwritten original went
}

// apply executes the step. On success the entry records what it did so
// undo can reverse it.
func (t *Transaction) apply(idx int, step *journalEntry) error {
	switch step.kind {
	case OpMkdir:
		if err := os.Mkdir(step.path, 0755); err != nil {
			return err
		}

	case OpWriteFile:
		if err := t.backupExisting(idx, step); err != nil {
			return err
		}
		if err := writeFileAtomic(step.path, t.tempPath(step.path), func(f *os.File) error {
			_, err := f.Write(step.content)
			return err
		}); err != nil {
			_ = t.restoreBackup(step)
			return err
		}

	case OpCopyFile:
		src, err := os.Open(step.source)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := t.backupExisting(idx, step); err != nil {
			return err
		}
		if err := writeFileAtomic(step.path, t.tempPath(step.path), func(f *os.File) error {
			_, err := io.Copy(f, src)
			return err
		}); err != nil {
			_ = t.restoreBackup(step)
			return err
		}

	case OpMoveFile:
		if _, err := os.Lstat(step.path); err == nil {
			return fmt.Errorf("destination already exists: %s", step.path)
		}
		if err := os.Rename(step.source, step.path); err != nil {
			return err
		}

	case OpDeleteFile, OpDeleteDir:
		slot, err := t.quarantineSlot(idx, step.path)
		if err != nil {
			return err
		}
		if err := os.Rename(step.path, slot); err != nil {
			return err
		}
		step.quarantinePath = slot

	default:
		return fmt.Errorf("unknown op kind %d", step.kind)
	}

	step.applied = true
	return nil
}

// undo reverses an applied step. Steps are undone in reverse order of
// application.
func (t *Transaction) undo(step *journalEntry) error {
	if !step.applied {
		// A failed write may have quarantined the original without the
		// step ever applying. The original still has to come back before
		// the quarantine directory is purged.
		return t.restoreBackup(step)
	}

	switch step.kind {
	case OpMkdir:
		if err := os.Remove(step.path); err != nil {
			return err
		}

	case OpWriteFile, OpCopyFile:
		if err := os.Remove(step.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := t.restoreBackup(step); err != nil {
			return err
		}

	case OpMoveFile:
		if err := os.Rename(step.path, step.source); err != nil {
			return err
		}

	case OpDeleteFile, OpDeleteDir:
		if err := os.Rename(step.quarantinePath, step.path); err != nil {
			return err
		}
	}

	step.applied = false
	return nil
}

// backupExisting quarantines an existing destination before it is
// overwritten, so rollback can restore the original bytes.
func (t *Transaction) backupExisting(idx int, step *journalEntry) error {
	if _, err := os.Lstat(step.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	slot, err := t.quarantineSlot(idx, step.path)
	if err != nil {
		return err
	}
	if err := os.Rename(step.path, slot); err != nil {
		return err
	}

	step.backedUp = true
	step.quarantinePath = slot
	return nil
}

// restoreBackup puts a quarantined original back after a failed write,
// keeping the step unapplied. The backedUp flag stays set until the
// rename back succeeds, so rollback can retry a restore that failed on
// the apply error path and escalate if the original stays lost.
func (t *Transaction) restoreBackup(step *journalEntry) error {
	if !step.backedUp {
		return nil
	}
	if err := os.Rename(step.quarantinePath, step.path); err != nil {
		return err
	}
	step.backedUp = false
	step.quarantinePath = ""
	return nil
}

// quarantineSlot allocates a unique path inside the transaction's
// quarantine directory, creating the directory on first use.
func (t *Transaction) quarantineSlot(idx int, original string) (string, error) {
	if err := os.MkdirAll(t.quarantineDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(t.quarantineDir, fmt.Sprintf("%d-%s", idx, filepath.Base(original))), nil
}

// purgeQuarantine removes the transaction's quarantine directory. The
// shared parent is removed too once no other transaction is using it.
func (t *Transaction) purgeQuarantine() error {
	if err := os.RemoveAll(t.quarantineDir); err != nil {
		return err
	}
	// Ignore the error: the parent stays while other transactions hold
	// quarantined files.
	_ = os.Remove(filepath.Dir(t.quarantineDir))
	return nil
}

// tempPath names the temporary file a destination write stages into,
// alongside the destination so the final rename stays on one filesystem.
func (t *Transaction) tempPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), fmt.Sprintf(".%s.%s.tmp", filepath.Base(dst), t.id))
}

// writeFileAtomic stages content into tmp via fill, syncs it, and
// renames it over dst. The destination is never observably partial.
// The temp file is removed on every failure path.
func writeFileAtomic(dst, tmp string, fill func(*os.File) error) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
