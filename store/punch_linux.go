//go:build linux

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// punchHole deallocates the byte range, leaving it reading as zero.
func punchHole(file *os.File, offset, length int64) error {
	err := unix.Fallocate(int(file.Fd()),
		unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
	if err == unix.EOPNOTSUPP {
		// Filesystem without hole punching
		return zeroFill(file, offset, length)
	}
	return err
}
