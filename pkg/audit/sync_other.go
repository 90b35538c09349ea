//go:build !linux

package audit

import "os"

// fdatasync falls back to a full fsync on platforms without fdatasync.
func fdatasync(f *os.File) error {
	return f.Sync()
}
