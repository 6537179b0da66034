//go:build !linux

package store

import "os"

// punchHole deallocates the byte range, leaving it reading as zero.
func punchHole(file *os.File, offset, length int64) error {
	return zeroFill(file, offset, length)
}
