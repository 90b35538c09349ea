// Package capability implements unforgeable, directory-scoped
// permission tokens and the path guard that authorizes every
// filesystem access in fsguard.
//
// A Capability binds a canonicalized directory root to a permission
// set. Capabilities are constructed only through Mint and Derive;
// both canonicalize and validate before returning, and the resulting
// value is immutable. Derive can only narrow: a child capability's
// root is a descendant of the parent's, and its permissions are a
// subset of the parent's.
//
// Every authorization re-canonicalizes the target path at call time,
// so a symlink planted between planning and execution cannot redirect
// an operation outside the granted subtree.
package capability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

// Capability is an unforgeable token granting a bounded permission set
// over a canonicalized directory subtree. The zero value is unusable;
// obtain one via Mint or Derive.
type Capability struct {
	id       string
	root     string
	perms    Permissions
	parentID string
}

// Mint creates a root capability for the given directory.
//
// The root is canonicalized (absolute, all symlinks resolved) and must
// be an existing directory; otherwise an InvalidRoot error is returned.
func Mint(root string, perms Permissions) (*Capability, error) {
	canonical, err := canonicalize(root)
	if err != nil {
		return nil, newInvalidRoot(root, err)
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		return nil, newInvalidRoot(root, err)
	}

	return &Capability{
		id:    uuid.NewString(),
		root:  canonical,
		perms: perms,
	}, nil
}

// Derive creates a narrower capability rooted at sub (relative to the
// parent's root) with the given permissions.
//
// Fails with PermissionEscalation if perms is not a subset of the
// parent's permissions, and with PathEscape if sub resolves outside the
// parent's root. The resolved sub must be an existing directory.
func (c *Capability) Derive(sub string, perms Permissions) (*Capability, error) {
	if !perms.SubsetOf(c.perms) {
		return nil, newPermissionEscalation(perms, c.perms)
	}

	resolved, err := c.Resolve(sub)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return nil, newInvalidRoot(resolved, err)
	}

	return &Capability{
		id:       uuid.NewString(),
		root:     resolved,
		perms:    perms,
		parentID: c.id,
	}, nil
}

// ID returns the capability's unique identifier.
func (c *Capability) ID() string {
	return c.id
}

// Root returns the canonical root path.
func (c *Capability) Root() string {
	return c.root
}

// Permissions returns the granted permission set.
func (c *Capability) Permissions() Permissions {
	return c.perms
}

// ParentID returns the ID of the capability this one was derived from,
// or the empty string for a minted root.
func (c *Capability) ParentID() string {
	return c.parentID
}

// Authorize checks perm against the granted set and resolves target
// (relative to the root) to its canonical location, verifying it stays
// inside the root. The target must exist. Returns the canonical path.
func (c *Capability) Authorize(target string, perm Permissions) (string, error) {
	if !c.perms.Has(perm) {
		return "", newDenied(perm, c.perms, target)
	}
	return c.Resolve(target)
}

// AuthorizeCreate is Authorize for paths that may not exist yet: the
// parent directory is canonicalized and containment-checked, and the
// final component re-appended.
func (c *Capability) AuthorizeCreate(target string, perm Permissions) (string, error) {
	if !c.perms.Has(perm) {
		return "", newDenied(perm, c.perms, target)
	}
	return c.ResolveForCreation(target)
}

// Resolve canonicalizes rel against the capability root and verifies
// containment. Absolute paths are rejected outright: callers address
// everything relative to the subtree they were granted.
func (c *Capability) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", newPathEscape(c.root, rel)
	}

	canonical, err := canonicalize(filepath.Join(c.root, rel))
	if err != nil {
		return "", classifyResolveErr(rel, err)
	}

	if !isWithin(c.root, canonical) {
		return "", newPathEscape(c.root, rel)
	}

	return canonical, nil
}

// ResolveForCreation resolves rel for a path that may not exist yet.
// The parent directory must exist and canonicalize inside the root. If
// the full path already exists it is resolved normally, so an existing
// symlink at the target cannot redirect the operation.
func (c *Capability) ResolveForCreation(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", newPathEscape(c.root, rel)
	}

	joined := filepath.Join(c.root, rel)
	if _, err := os.Lstat(joined); err == nil {
		return c.Resolve(rel)
	}

	parent, leaf := filepath.Split(joined)
	if leaf == "" || leaf == "." || leaf == ".." {
		return "", newPathEscape(c.root, rel)
	}

	canonicalParent, err := canonicalize(parent)
	if err != nil {
		return "", classifyResolveErr(rel, err)
	}

	if !isWithin(c.root, canonicalParent) {
		return "", newPathEscape(c.root, rel)
	}

	return filepath.Join(canonicalParent, leaf), nil
}

// canonicalize returns the absolute, symlink-free form of path.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isWithin reports whether path equals root or lies beneath it. Both
// arguments must already be canonical.
func isWithin(root, path string) bool {
	if path == root {
		return true
	}
	// The filesystem root already ends in the separator, so the usual
	// prefix test would look for "//".
	if root == string(filepath.Separator) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func classifyResolveErr(path string, err error) *Error {
	switch {
	case errors.Is(err, syscall.ELOOP):
		return newSymlinkLoop(path, err)
	case os.IsNotExist(err):
		return newNotFound(path, err)
	default:
		return newIO(path, err)
	}
}
