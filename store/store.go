package store

import (
	"context"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/scsi"
	"github.com/ardnew/softscsi/unit"
	"github.com/ardnew/softscsi/unit/channel"
)

// Disk defines the interface for block storage backends.
// Implementations provide block-level storage operations.
type Disk interface {
	// BlockCount returns the total number of blocks.
	BlockCount() uint64

	// BlockLength returns the size of a storage block in bytes.
	BlockLength() uint32

	// ReadBlocks reads blockCount blocks starting at blockAddress into buf.
	ReadBlocks(blockAddress uint64, blockCount uint32, buf []byte) error

	// WriteBlocks writes blockCount blocks from buf starting at blockAddress.
	WriteBlocks(blockAddress uint64, blockCount uint32, buf []byte) error

	// Flush commits any cached writes to storage.
	Flush() error

	// Unmap deallocates blockCount blocks starting at blockAddress.
	// Deallocated blocks read back as zero.
	Unmap(blockAddress uint64, blockCount uint32) error

	// WriteProtected returns true if the disk rejects writes.
	WriteProtected() bool

	// Close releases backend resources.
	Close() error
}

// Interface builds the capability table serving d. All four operations
// are bound; pair it with unit.Params whose BlockCount, BlockLength, and
// WriteProtected match the disk.
func Interface(d Disk) *unit.Interface {
	return &unit.Interface{
		Version: unit.InterfaceVersion,
		Read: func(_ context.Context, _ *unit.StorageUnit,
			buf []byte, blockAddress uint64, blockCount uint32, flush bool,
			status *scsi.Status) bool {
			if !checkRange(d, blockAddress, blockCount, status) {
				return false
			}
			if err := d.ReadBlocks(blockAddress, blockCount, buf); err != nil {
				pkg.LogError(pkg.ComponentStore, "read failed",
					"block", blockAddress, "count", blockCount, "error", err)
				scsi.SetSenseWithInformation(status,
					scsi.SenseMediumError, scsi.ASCUnrecoveredReadError, blockAddress)
				return false
			}
			if flush {
				return flushDisk(d, status)
			}
			return true
		},
		Write: func(_ context.Context, _ *unit.StorageUnit,
			buf []byte, blockAddress uint64, blockCount uint32, flush bool,
			status *scsi.Status) bool {
			if d.WriteProtected() {
				scsi.SetSense(status, scsi.SenseDataProtect, scsi.ASCWriteProtected)
				return false
			}
			if !checkRange(d, blockAddress, blockCount, status) {
				return false
			}
			if err := d.WriteBlocks(blockAddress, blockCount, buf); err != nil {
				pkg.LogError(pkg.ComponentStore, "write failed",
					"block", blockAddress, "count", blockCount, "error", err)
				scsi.SetSenseWithInformation(status,
					scsi.SenseMediumError, scsi.ASCWriteFault, blockAddress)
				return false
			}
			if flush {
				return flushDisk(d, status)
			}
			return true
		},
		Flush: func(_ context.Context, _ *unit.StorageUnit,
			_ uint64, _ uint32, status *scsi.Status) bool {
			return flushDisk(d, status)
		},
		Unmap: func(_ context.Context, _ *unit.StorageUnit,
			descriptors []channel.UnmapDescriptor, status *scsi.Status) bool {
			for _, desc := range descriptors {
				if !checkRange(d, desc.BlockAddress, desc.BlockCount, status) {
					return false
				}
				if err := d.Unmap(desc.BlockAddress, desc.BlockCount); err != nil {
					pkg.LogError(pkg.ComponentStore, "unmap failed",
						"block", desc.BlockAddress, "count", desc.BlockCount, "error", err)
					scsi.SetSenseWithInformation(status,
						scsi.SenseMediumError, scsi.ASCWriteFault, desc.BlockAddress)
					return false
				}
			}
			return true
		},
	}
}

// checkRange validates that the addressed range lies within the disk.
func checkRange(d Disk, blockAddress uint64, blockCount uint32, status *scsi.Status) bool {
	total := d.BlockCount()
	if blockAddress >= total || uint64(blockCount) > total-blockAddress {
		scsi.SetSenseWithInformation(status,
			scsi.SenseIllegalRequest, scsi.ASCLogicalBlockOutOfRange, blockAddress)
		return false
	}
	return true
}

func flushDisk(d Disk, status *scsi.Status) bool {
	if err := d.Flush(); err != nil {
		pkg.LogError(pkg.ComponentStore, "flush failed", "error", err)
		scsi.SetSense(status, scsi.SenseMediumError, scsi.ASCWriteFault)
		return false
	}
	return true
}
