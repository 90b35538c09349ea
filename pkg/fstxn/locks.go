package fstxn

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SubtreeLocks is the process-wide registry of exclusive subtree locks.
// A transaction holds the lock on its capability's canonical root for
// the whole of Staging; transactions on disjoint subtrees proceed
// concurrently, overlapping ones fail fast with SubtreeBusy.
//
// A subtree on which a rollback failed is frozen: no new transaction
// may stage under it until Unfreeze is called after manual repair.
//
// One instance is created by the host process and passed to every
// engine that needs it; there is no package-level default.
type SubtreeLocks struct {
	mu     sync.Mutex
	held   map[string]struct{}
	frozen map[string]string // root -> transaction ID that froze it
}

// NewSubtreeLocks creates an empty registry.
func NewSubtreeLocks() *SubtreeLocks {
	return &SubtreeLocks{
		held:   make(map[string]struct{}),
		frozen: make(map[string]string),
	}
}

// Acquire takes the exclusive lock on root. Fails with SubtreeBusy if
// any held lock overlaps root (either containing it or contained by
// it), and with SubtreeFrozen if root lies under a frozen subtree.
func (s *SubtreeLocks) Acquire(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for frozenRoot := range s.frozen {
		if overlaps(frozenRoot, root) {
			return newSubtreeFrozen(frozenRoot)
		}
	}
	for heldRoot := range s.held {
		if overlaps(heldRoot, root) {
			return newSubtreeBusy(heldRoot)
		}
	}

	s.held[root] = struct{}{}
	return nil
}

// Release drops the lock on root. Releasing an unheld root is a no-op.
func (s *SubtreeLocks) Release(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, root)
}

// Freeze marks root as frozen on behalf of txnID. Used after a rollback
// failure, when the subtree's durable state is suspect.
func (s *SubtreeLocks) Freeze(root, txnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen[root] = txnID
}

// Unfreeze lifts a freeze after manual resolution.
func (s *SubtreeLocks) Unfreeze(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frozen, root)
}

// Frozen returns the currently frozen roots, sorted.
func (s *SubtreeLocks) Frozen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := make([]string, 0, len(s.frozen))
	for root := range s.frozen {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// overlaps reports whether two canonical roots share a subtree: equal,
// or one an ancestor of the other.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	// The filesystem root is an ancestor of every other root.
	if a == sep || b == sep {
		return true
	}
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}
