package capability

import "strings"

// Permissions is a bit set of filesystem rights a capability grants.
type Permissions uint8

const (
	// PermRead allows reading files and listing directories.
	PermRead Permissions = 1 << iota

	// PermWrite allows creating and overwriting files.
	PermWrite

	// PermDelete allows removing files and directories.
	PermDelete

	// PermCreateDir allows creating directories.
	PermCreateDir
)

// Full returns all permissions.
func Full() Permissions {
	return PermRead | PermWrite | PermDelete | PermCreateDir
}

// ReadOnly returns read permission only.
func ReadOnly() Permissions {
	return PermRead
}

// ReadWrite returns read, write and directory-creation permissions,
// but not delete.
func ReadWrite() Permissions {
	return PermRead | PermWrite | PermCreateDir
}

// Has reports whether all bits of perm are present.
func (p Permissions) Has(perm Permissions) bool {
	return p&perm == perm
}

// SubsetOf reports whether p grants nothing beyond other.
func (p Permissions) SubsetOf(other Permissions) bool {
	return p&^other == 0
}

// Intersect returns the permissions common to p and other.
func (p Permissions) Intersect(other Permissions) Permissions {
	return p & other
}

// String renders the set as "read|write|delete|createdir", or "none".
func (p Permissions) String() string {
	if p == 0 {
		return "none"
	}

	var parts []string
	if p.Has(PermRead) {
		parts = append(parts, "read")
	}
	if p.Has(PermWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PermDelete) {
		parts = append(parts, "delete")
	}
	if p.Has(PermCreateDir) {
		parts = append(parts, "createdir")
	}
	return strings.Join(parts, "|")
}
