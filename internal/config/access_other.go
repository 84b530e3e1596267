//go:build !unix

package config

import "io/fs"

func executableByCaller(_ string, mode fs.FileMode) bool {
	return mode.Perm()&0o111 != 0
}
