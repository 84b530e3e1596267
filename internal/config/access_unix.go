//go:build unix

package config

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// executableByCaller asks the kernel whether the current user may
// execute path, honouring owner, group and other permission bits.
func executableByCaller(path string, _ fs.FileMode) bool {
	return unix.Access(path, unix.X_OK) == nil
}
