package unit

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/scsi"
	"github.com/ardnew/softscsi/unit/channel"
)

// InterfaceVersion is the current capability table version.
const InterfaceVersion = 1

// Storage operation signatures. Each callback executes on a dispatcher
// worker and must be safe for concurrent invocation across workers. A
// callback returns false to signal failure and must populate status (via
// [scsi.SetSense] or [scsi.SetSenseWithInformation]) before returning.
// Returning true with an untouched status reports full success; returning
// true with a populated status sends that status to the controller
// unchanged, and no data payload is attached.
type (
	// ReadFunc reads blockCount blocks starting at blockAddress into buf.
	// When flush is set, the unit's non-volatile cache is synchronized
	// after the read.
	ReadFunc func(ctx context.Context, u *StorageUnit,
		buf []byte, blockAddress uint64, blockCount uint32, flush bool,
		status *scsi.Status) bool

	// WriteFunc writes blockCount blocks from buf starting at
	// blockAddress. When flush is set, the write reaches media before the
	// callback returns.
	WriteFunc func(ctx context.Context, u *StorageUnit,
		buf []byte, blockAddress uint64, blockCount uint32, flush bool,
		status *scsi.Status) bool

	// FlushFunc synchronizes cached writes for blockCount blocks starting
	// at blockAddress. blockCount of 0 flushes the whole unit.
	FlushFunc func(ctx context.Context, u *StorageUnit,
		blockAddress uint64, blockCount uint32,
		status *scsi.Status) bool

	// UnmapFunc deallocates the given block ranges. Ranges arrive in
	// request order and are not deduplicated or coalesced.
	UnmapFunc func(ctx context.Context, u *StorageUnit,
		descriptors []channel.UnmapDescriptor,
		status *scsi.Status) bool
)

// Interface is the versioned capability table of storage operations that
// the embedding application supplies. The dispatcher invokes these
// callbacks on its worker pool; the caller retains ownership and must keep
// the table alive for the storage unit's lifetime.
//
// Version is checked when the table is bound at creation. Operations left
// nil — and operations added by future versions that an implementation
// does not bind — are answered with an ILLEGAL REQUEST sense instead of a
// callback invocation.
type Interface struct {
	Version uint16

	Read  ReadFunc
	Write WriteFunc
	Flush FlushFunc
	Unmap UnmapFunc
}

// validate checks the capability table version at bind time.
func (i *Interface) validate() error {
	if i == nil {
		return errors.Wrap(pkg.ErrInvalidParameter, "nil interface")
	}
	if i.Version == 0 || i.Version > InterfaceVersion {
		return errors.Wrapf(pkg.ErrInvalidVersion, "version %d", i.Version)
	}
	return nil
}
